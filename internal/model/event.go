package model

import "strings"

// EventStatus はイベントの表示用ステータス。
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmado"
	StatusPending   EventStatus = "pendente"
	StatusCancelled EventStatus = "cancelado"
)

// ParseEventStatus は大文字小文字を区別せずにEventStatusへ変換する。
// 未知の値の場合はfalseを返す。
func ParseEventStatus(s string) (EventStatus, bool) {
	switch EventStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusConfirmed:
		return StatusConfirmed, true
	case StatusPending:
		return StatusPending, true
	case StatusCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Label はステータスの表示名を返す。
func (s EventStatus) Label() string {
	switch s {
	case StatusConfirmed:
		return "Confirmado"
	case StatusCancelled:
		return "Cancelado"
	default:
		return "Pendente"
	}
}

// CSSClass はステータスに対応するCSSクラス名を返す。
func (s EventStatus) CSSClass() string {
	switch s {
	case StatusConfirmed:
		return "status-confirmed"
	case StatusCancelled:
		return "status-cancelled"
	default:
		return "status-pending"
	}
}

// UnmarshalText は未知の値を「指定なし」（空文字）として読み込む。
func (s *EventStatus) UnmarshalText(b []byte) error {
	parsed, _ := ParseEventStatus(string(b))
	*s = parsed
	return nil
}

// ParticipantRole はイベント参加者の役割。
type ParticipantRole string

const (
	RoleParticipant ParticipantRole = "PARTICIPANT"
	RoleOrganizer   ParticipantRole = "ORGANIZER"
	RoleVolunteer   ParticipantRole = "VOLUNTEER"
	RoleSpeaker     ParticipantRole = "SPEAKER"
	RoleCoordinator ParticipantRole = "COORDINATOR"
)

// ParticipantRoles は選択可能な役割の一覧（表示順）。
var ParticipantRoles = []ParticipantRole{
	RoleParticipant,
	RoleOrganizer,
	RoleVolunteer,
	RoleSpeaker,
	RoleCoordinator,
}

// Label は役割の表示名を返す。
func (r ParticipantRole) Label() string {
	switch r {
	case RoleParticipant:
		return "Participante"
	case RoleOrganizer:
		return "Organizador"
	case RoleVolunteer:
		return "Voluntário"
	case RoleSpeaker:
		return "Palestrante"
	case RoleCoordinator:
		return "Coordenador"
	default:
		return string(r)
	}
}

// Valid は定義済みの役割かどうかを返す。
func (r ParticipantRole) Valid() bool {
	for _, v := range ParticipantRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Participant はイベント参加者を表す。UIからは追加のみ行い、更新はしない。
type Participant struct {
	ID           string          `json:"id"`
	MemberID     string          `json:"memberId"`
	Role         ParticipantRole `json:"role"`
	RegisteredAt Timestamp       `json:"registeredAt"`
	CreatedAt    Timestamp       `json:"createdAt"`
	UpdatedAt    Timestamp       `json:"updatedAt"`
}

// Organizer はイベント主催者を表す。
type Organizer struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"memberId"`
	Name      string    `json:"name,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// CanonicalEvent はバックエンドが返すイベントの完全な表現。
// Status はバックエンドが明示的に返した場合のみ設定される。
type CanonicalEvent struct {
	ID            string        `json:"id"`
	ChurchID      string        `json:"churchId"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	StartDatetime Timestamp     `json:"startDatetime"`
	EndDatetime   Timestamp     `json:"endDatetime"`
	Location      string        `json:"location"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     Timestamp     `json:"createdAt"`
	UpdatedAt     Timestamp     `json:"updatedAt"`
	Participants  []Participant `json:"participants"`
	Organizers    []Organizer   `json:"organizers"`
	Status        EventStatus   `json:"status,omitempty"`
}

// DisplayEvent は一覧表示用に簡略化したイベント。永続化はしない。
type DisplayEvent struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Date         string      `json:"date"`
	Location     string      `json:"location"`
	Participants int         `json:"participants"`
	Status       EventStatus `json:"status"`
}

// EventRequest はイベント作成・更新リクエストのボディ。
type EventRequest struct {
	ChurchID      string `json:"churchId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	StartDatetime string `json:"startDatetime"`
	EndDatetime   string `json:"endDatetime"`
	Location      string `json:"location"`
	CreatedBy     string `json:"createdBy"`
}

// ParticipantRequest は参加者追加リクエストの1要素。
type ParticipantRequest struct {
	MemberID     string          `json:"memberId"`
	Role         ParticipantRole `json:"role"`
	RegisteredAt string          `json:"registeredAt"`
}

// AddParticipantsResult は参加者追加の結果。
type AddParticipantsResult struct {
	Count        int           `json:"count"`
	Participants []Participant `json:"participants"`
}
