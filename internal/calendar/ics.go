// Package calendar はイベント一覧をiCalendar(.ics)形式で書き出す。
package calendar

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hitoshi/churchadmin/internal/event"
	"github.com/hitoshi/churchadmin/internal/model"
)

const (
	productID = "-//churchadmin//Eventos//PT"
	// DefaultDuration は終了日時がないイベントの長さ。編集フォームの初期値と揃える。
	DefaultDuration = 2 * time.Hour
)

// Exporter はイベントを.icsに変換する。
// タイトル等のテキストと状態はNormalizerの表示変換と同じ結果を使う。
type Exporter struct {
	normalizer *event.Normalizer
}

// NewExporter はExporterを生成する。
func NewExporter(n *event.Normalizer) *Exporter {
	return &Exporter{normalizer: n}
}

// Export はイベントをiCalendar文字列にする。
// 開始日時がないイベントは予定として表せないため出力しない。
func (x *Exporter) Export(name string, es []model.CanonicalEvent) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName(name)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(x.normalizer.Location().String())

	stamp := x.normalizer.Now().UTC()
	loc := x.normalizer.Location()

	for _, e := range es {
		if e.StartDatetime.IsZero() {
			continue
		}
		d := x.normalizer.ToDisplay(e)

		start := e.StartDatetime.In(loc).UTC()
		end := start.Add(DefaultDuration)
		if !e.EndDatetime.IsZero() {
			if t := e.EndDatetime.In(loc).UTC(); t.After(start) {
				end = t
			}
		}

		ve := cal.AddEvent(e.ID + "@churchadmin")
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(start)
		ve.SetEndAt(end)
		ve.SetSummary(d.Title)
		if d.Description != "" {
			ve.SetDescription(d.Description)
		}
		if d.Location != "" {
			ve.SetLocation(d.Location)
		}
		ve.SetStatus(objectStatus(d.Status))
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt.In(loc).UTC())
		}
	}

	return cal.Serialize()
}

func objectStatus(s model.EventStatus) ical.ObjectStatus {
	switch s {
	case model.StatusConfirmed:
		return ical.ObjectStatusConfirmed
	case model.StatusCancelled:
		return ical.ObjectStatusCancelled
	default:
		return ical.ObjectStatusTentative
	}
}
