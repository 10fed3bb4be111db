package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockChannel はテスト用のAMQPチャネル。
type mockChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.published = append(m.published, msg)
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

// mockPublisher は送信されたレコードを保持する。
type mockPublisher struct {
	entries []Entry
	err     error
	ctxErr  error
}

func (m *mockPublisher) Publish(ctx context.Context, e Entry) error {
	m.ctxErr = ctx.Err()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestAMQPPublisher_PublishesJSONWithRoutingKey(t *testing.T) {
	var buf bytes.Buffer
	ch := &mockChannel{}
	p := newAMQPPublisher(ch, "churchadmin.audit", newTestLogger(&buf))

	entry := Entry{Action: ActionEventCreated, EventID: "e1", ActorID: "u1", Actor: "pastor@igreja.org", At: fixedNow}
	if err := p.Publish(context.Background(), entry); err != nil {
		t.Fatalf("Publish がエラーを返した: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("送信件数 = %d, want 1", len(ch.published))
	}
	if ch.keys[0] != ActionEventCreated {
		t.Errorf("routing key = %q, want %q", ch.keys[0], ActionEventCreated)
	}
	msg := ch.published[0]
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Errorf("ContentType=%q DeliveryMode=%d", msg.ContentType, msg.DeliveryMode)
	}
	if msg.MessageId == "" {
		t.Error("MessageId が設定されていない")
	}

	var got Entry
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("本文がJSONではない: %v", err)
	}
	if got.EventID != "e1" || !got.At.Equal(fixedNow) {
		t.Errorf("本文 = %+v", got)
	}
}

func TestAMQPPublisher_WrapsError(t *testing.T) {
	var buf bytes.Buffer
	cause := errors.New("channel closed")
	p := newAMQPPublisher(&mockChannel{err: cause}, "x", newTestLogger(&buf))

	err := p.Publish(context.Background(), Entry{Action: ActionEventDeleted})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapping %v", err, cause)
	}
}

func TestAMQPPublisher_Close(t *testing.T) {
	var buf bytes.Buffer
	ch := &mockChannel{}
	p := newAMQPPublisher(ch, "x", newTestLogger(&buf))

	if err := p.Close(); err != nil {
		t.Fatalf("Close がエラーを返した: %v", err)
	}
	if !ch.closed {
		t.Error("チャネルが閉じられていない")
	}
}

func TestLogPublisher_WritesEntry(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(newTestLogger(&buf))

	p.Publish(context.Background(), Entry{Action: ActionParticipantsAdded, EventID: "e9", Count: 3, At: fixedNow})

	out := buf.String()
	for _, want := range []string{`"action":"event.participants_added"`, `"event_id":"e9"`, `"count":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("ログに %s が含まれていない: %s", want, out)
		}
	}
}

func TestAuditor_StampsTimeAndIgnoresCancellation(t *testing.T) {
	var buf bytes.Buffer
	pub := &mockPublisher{}
	a := NewAuditor(pub, newTestLogger(&buf), func() time.Time { return fixedNow })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Record(ctx, Entry{Action: ActionEventUpdated, EventID: "e1"})

	if len(pub.entries) != 1 {
		t.Fatalf("送信件数 = %d, want 1", len(pub.entries))
	}
	if !pub.entries[0].At.Equal(fixedNow) {
		t.Errorf("At = %v, want %v", pub.entries[0].At, fixedNow)
	}
	if pub.ctxErr != nil {
		t.Errorf("キャンセル済みのコンテキストが渡された: %v", pub.ctxErr)
	}
}

func TestAuditor_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditor(&mockPublisher{err: errors.New("broker down")}, newTestLogger(&buf), nil)

	a.Record(context.Background(), Entry{Action: ActionEventDeleted, EventID: "e2"})

	if !strings.Contains(buf.String(), "broker down") {
		t.Errorf("送信失敗がログに出力されていない: %s", buf.String())
	}
}

func TestAuditor_NilIsNoop(t *testing.T) {
	var a *Auditor
	a.Record(context.Background(), Entry{Action: ActionEventCreated})
}
