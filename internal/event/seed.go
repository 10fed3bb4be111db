package event

import (
	"fmt"
	"time"

	"github.com/hitoshi/churchadmin/internal/form"
	"github.com/hitoshi/churchadmin/internal/model"
)

// EditSeed は編集フォームの初期値。
type EditSeed struct {
	EventID string         `json:"eventId"`
	Form    form.EventForm `json:"form"`
}

// CreateSeed は新規作成フォームの初期値を返す。
// 教会と作成者はログイン中のユーザーから補完する。
func CreateSeed(user *model.UserProfile) form.EventForm {
	var f form.EventForm
	if user != nil {
		f.ChurchID = user.ChurchID
		f.CreatedBy = user.Username
	}
	return f
}

// EditSeedFrom は表示用イベントから編集フォームの初期値を作る。
//
// 表示用イベントは終了日時を持たないため、開始日時（分単位に切り捨て）に
// 2時間を加えた値を終了日時の仮の値とする。元の終了日時は復元されない近似であり、
// 往復変換にはならない。
func EditSeedFrom(d model.DisplayEvent, user *model.UserProfile, loc *time.Location) EditSeed {
	f := CreateSeed(user)
	f.Name = d.Title
	f.Description = d.Description
	f.Location = d.Location

	if ts, err := model.ParseTimestamp(d.Date); err == nil {
		start := ts.In(loc).Truncate(time.Minute)
		f.StartDatetime = start.Format(model.DatetimeLocalLayout)
		f.EndDatetime = start.Add(editSeedDuration).Format(model.DatetimeLocalLayout)
	}

	return EditSeed{EventID: d.ID, Form: f}
}

// EditSeed は現在時刻を基準に canonical なイベントから編集フォームの初期値を作る。
func (n *Normalizer) EditSeed(e model.CanonicalEvent, user *model.UserProfile) EditSeed {
	return EditSeedFrom(ToDisplay(e, n.now(), n.loc), user, n.loc)
}

// FieldError はフォームの特定フィールドを変換できなかったことを表す。
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ToRequest は検証済みのフォームをバックエンドへのリクエストに変換する。
// datetime-local の値は表示タイムゾーンで解釈し、UTCのISO-8601文字列にする。
// 解釈できない値は *FieldError を返す。
func (n *Normalizer) ToRequest(f form.EventForm) (model.EventRequest, error) {
	start, err := model.ParseDatetimeLocal(f.StartDatetime, n.loc)
	if err != nil {
		return model.EventRequest{}, &FieldError{Field: "startDatetime", Err: err}
	}
	end, err := model.ParseDatetimeLocal(f.EndDatetime, n.loc)
	if err != nil {
		return model.EventRequest{}, &FieldError{Field: "endDatetime", Err: err}
	}

	return model.EventRequest{
		ChurchID:      f.ChurchID,
		Name:          f.Name,
		Description:   f.Description,
		StartDatetime: model.NewTimestamp(start).String(),
		EndDatetime:   model.NewTimestamp(end).String(),
		Location:      f.Location,
		CreatedBy:     f.CreatedBy,
	}, nil
}

// ParticipantRequests は参加者フォームの各行を登録日時付きのリクエストに変換する。
func (n *Normalizer) ParticipantRequests(f form.ParticipantsForm) []model.ParticipantRequest {
	registeredAt := model.NewTimestamp(n.now()).String()
	out := make([]model.ParticipantRequest, 0, len(f.Participants))
	for _, row := range f.Participants {
		out = append(out, model.ParticipantRequest{
			MemberID:     row.MemberID,
			Role:         row.Role,
			RegisteredAt: registeredAt,
		})
	}
	return out
}
