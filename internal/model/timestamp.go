package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// zonelessLayouts はタイムゾーン指定のない日時表現として受け付けるレイアウト。
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Timestamp はバックエンドから受け取った日時を、元の文字列表現と共に保持する。
// タイムゾーン指定のない値（例: "2025-12-01T10:00:00"）は floating として扱い、
// 解釈するタイムゾーンは利用側が In で決める。
// JSONへの再エンコード時は受け取った文字列をそのまま出力する。
type Timestamp struct {
	raw      string
	t        time.Time
	floating bool
}

// ParseTimestamp は文字列をTimestampに変換する。
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{raw: s, t: t}, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{raw: s, t: t, floating: true}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unsupported timestamp format: %q", s)
}

// NewTimestamp は時刻からTimestampを生成する。
// 文字列表現はミリ秒精度のUTC ISO-8601形式になる。
func NewTimestamp(t time.Time) Timestamp {
	u := t.UTC()
	return Timestamp{raw: u.Format("2006-01-02T15:04:05.000Z"), t: u}
}

// String は受け取った元の文字列表現を返す。
func (ts Timestamp) String() string {
	return ts.raw
}

// IsZero は値が未設定かどうかを返す。
func (ts Timestamp) IsZero() bool {
	return ts.raw == "" && ts.t.IsZero()
}

// Floating はタイムゾーン指定のない値かどうかを返す。
func (ts Timestamp) Floating() bool {
	return ts.floating
}

// In は指定タイムゾーンでの時刻を返す。
// floatingな値は壁時計の値をそのままlocの時刻として解釈する。
func (ts Timestamp) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if ts.floating {
		return time.Date(ts.t.Year(), ts.t.Month(), ts.t.Day(),
			ts.t.Hour(), ts.t.Minute(), ts.t.Second(), ts.t.Nanosecond(), loc)
	}
	return ts.t.In(loc)
}

// MarshalJSON はTimestampを元の文字列としてエンコードする。
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.raw)
}

// UnmarshalJSON はJSON文字列からTimestampを復元する。nullと空文字列はゼロ値になる。
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// DatetimeLocalLayout はフォームの datetime-local 入力値のレイアウト。
const DatetimeLocalLayout = "2006-01-02T15:04"

// ParseDatetimeLocal は datetime-local 形式（秒付きも可）の値を loc の時刻として解釈する。
func ParseDatetimeLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{DatetimeLocalLayout, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime-local value: %q", s)
}
