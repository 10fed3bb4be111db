// Package event はバックエンドのイベント表現と画面表示用の表現を相互に変換する。
package event

import (
	"fmt"
	"math"
	"time"

	"github.com/hitoshi/churchadmin/internal/model"
)

const (
	// confirmWindowDays はこの日数以内に開始するイベントを confirmado とみなす。
	confirmWindowDays = 7
	// editSeedDuration は編集フォームの終了時刻を開始時刻から補う際の長さ。
	editSeedDuration = 2 * time.Hour
)

// TextSanitizer は表示用テキストを無害化する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Normalizer はイベントの表示変換を行う。
// 現在時刻と表示タイムゾーンを保持し、純粋関数 ToDisplay 等に渡す。
type Normalizer struct {
	loc       *time.Location
	now       func() time.Time
	sanitizer TextSanitizer
}

// NewNormalizer はNormalizerを生成する。nowがnilの場合はtime.Nowを使う。
func NewNormalizer(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, now: now}
}

// WithSanitizer は表示テキストに適用するサニタイザを設定する。
func (n *Normalizer) WithSanitizer(s TextSanitizer) *Normalizer {
	n.sanitizer = s
	return n
}

// Location は表示タイムゾーンを返す。
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now は現在時刻を返す。
func (n *Normalizer) Now() time.Time {
	return n.now()
}

// ToDisplay は現在時刻を基準に1件のイベントを表示用に変換する。
func (n *Normalizer) ToDisplay(e model.CanonicalEvent) model.DisplayEvent {
	return n.clean(ToDisplay(e, n.now(), n.loc))
}

// ToDisplayBatch は複数イベントを順序を保って変換する。
func (n *Normalizer) ToDisplayBatch(es []model.CanonicalEvent) []model.DisplayEvent {
	out := ToDisplayBatch(es, n.now(), n.loc)
	for i := range out {
		out[i] = n.clean(out[i])
	}
	return out
}

func (n *Normalizer) clean(d model.DisplayEvent) model.DisplayEvent {
	if n.sanitizer == nil {
		return d
	}
	d.Title = n.sanitizer.SanitizeText(d.Title)
	d.Description = n.sanitizer.SanitizeText(d.Description)
	d.Location = n.sanitizer.SanitizeText(d.Location)
	return d
}

// ToDisplay はバックエンドのイベントを表示用イベントに変換する。
//
// date は startDatetime の文字列をそのまま使い、participants は参加者数とする。
// バックエンドがステータスを明示している場合はそれを優先する（cancelado を
// 日付から再計算して上書きしないため）。明示がない場合のみ DeriveStatus で求める。
func ToDisplay(e model.CanonicalEvent, now time.Time, loc *time.Location) model.DisplayEvent {
	status := e.Status
	if status == "" {
		status = statusFor(e.StartDatetime, now, loc)
	}

	return model.DisplayEvent{
		ID:           e.ID,
		Title:        e.Name,
		Description:  e.Description,
		Date:         e.StartDatetime.String(),
		Location:     e.Location,
		Participants: len(e.Participants),
		Status:       status,
	}
}

// ToDisplayBatch は ToDisplay を順に適用する。空の入力には空のスライスを返す。
func ToDisplayBatch(es []model.CanonicalEvent, now time.Time, loc *time.Location) []model.DisplayEvent {
	out := make([]model.DisplayEvent, 0, len(es))
	for _, e := range es {
		out = append(out, ToDisplay(e, now, loc))
	}
	return out
}

func statusFor(start model.Timestamp, now time.Time, loc *time.Location) model.EventStatus {
	// 開始日時が不明なイベントは確定扱いにしない
	if start.IsZero() {
		return model.StatusPending
	}
	return DeriveStatus(start.In(loc), now)
}

// DaysUntil は start までの日数を1日単位の切り捨て（floor）で返す。
func DaysUntil(start, now time.Time) int {
	return int(math.Floor(start.Sub(now).Hours() / 24))
}

// DeriveStatus は開始日時からステータスを求める。
// 開始済み、または7日以内に開始するイベントは confirmado、それ以外は pendente。
// cancelado はこの関数からは返らない。
func DeriveStatus(start, now time.Time) model.EventStatus {
	if DaysUntil(start, now) <= confirmWindowDays {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

// StatusCount はステータスごとの件数。
type StatusCount struct {
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
}

// CountByStatus はステータスごとの件数を数える。
func CountByStatus(ds []model.DisplayEvent) StatusCount {
	var c StatusCount
	for _, d := range ds {
		switch d.Status {
		case model.StatusConfirmed:
			c.Confirmed++
		case model.StatusPending:
			c.Pending++
		case model.StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

// AddedParticipantsMessage は参加者追加成功時のメッセージを返す。
func AddedParticipantsMessage(count int) string {
	suffix := ""
	if count > 1 {
		suffix = "s"
	}
	return fmt.Sprintf("%d participante%s adicionado%s com sucesso!", count, suffix, suffix)
}
