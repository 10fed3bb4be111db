// Package audit は管理者によるイベント変更の監査ログを送信する。
// AMQP_URL が設定されていればRabbitMQへ、なければ構造化ログへ出力する。
package audit

import (
	"context"
	"log/slog"
	"time"
)

// 監査対象の操作
const (
	ActionEventCreated      = "event.created"
	ActionEventUpdated      = "event.updated"
	ActionEventDeleted      = "event.deleted"
	ActionParticipantsAdded = "event.participants_added"
)

// Entry は1件の監査レコード。
type Entry struct {
	Action   string    `json:"action"`
	EventID  string    `json:"eventId"`
	ActorID  string    `json:"actorId"`
	Actor    string    `json:"actor"`
	ChurchID string    `json:"churchId,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher は監査レコードの送信先。
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
	Close() error
}

// LogPublisher は監査レコードを構造化ログに出力する。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher はLogPublisherを生成する。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish は監査レコードをINFOログとして出力する。
func (p *LogPublisher) Publish(ctx context.Context, e Entry) error {
	p.logger.InfoContext(ctx, "監査ログ",
		slog.String("action", e.Action),
		slog.String("event_id", e.EventID),
		slog.String("actor_id", e.ActorID),
		slog.String("actor", e.Actor),
		slog.String("church_id", e.ChurchID),
		slog.Int("count", e.Count),
		slog.Time("at", e.At),
	)
	return nil
}

// Close は何もしない。
func (p *LogPublisher) Close() error { return nil }

// Auditor はハンドラーから監査レコードを記録する。
// 送信の失敗は利用者の操作を失敗させず、ログに残すだけにする。
type Auditor struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditor はAuditorを生成する。nowがnilの場合はtime.Nowを使う。
func NewAuditor(pub Publisher, logger *slog.Logger, now func() time.Time) *Auditor {
	if now == nil {
		now = time.Now
	}
	return &Auditor{pub: pub, logger: logger, now: now}
}

// Record は時刻を付与して監査レコードを送信する。
func (a *Auditor) Record(ctx context.Context, e Entry) {
	if a == nil || a.pub == nil {
		return
	}
	if e.At.IsZero() {
		e.At = a.now().UTC()
	}
	// リクエストのキャンセル後も送信は続ける
	if err := a.pub.Publish(context.WithoutCancel(ctx), e); err != nil {
		a.logger.Error("監査ログの送信に失敗しました",
			slog.String("action", e.Action),
			slog.String("event_id", e.EventID),
			slog.String("error", err.Error()),
		)
	}
}
