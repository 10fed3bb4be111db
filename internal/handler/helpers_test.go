package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/churchadmin/internal/audit"
	"github.com/hitoshi/churchadmin/internal/backend"
	"github.com/hitoshi/churchadmin/internal/calendar"
	"github.com/hitoshi/churchadmin/internal/event"
	"github.com/hitoshi/churchadmin/internal/loading"
	"github.com/hitoshi/churchadmin/internal/middleware"
	"github.com/hitoshi/churchadmin/internal/model"
	"github.com/hitoshi/churchadmin/internal/repository"
	"github.com/hitoshi/churchadmin/internal/session"
)

const (
	testNamespace = "6f1c2a4e-3b7d-4c1a-9e2f-8a5b6c7d8e9f"
	testCSRFToken = "csrf-test-token"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	adminProfile = &model.UserProfile{
		ID: "u-admin", Email: "pastor@igreja.org", Name: "Pastor João",
		Role: model.RoleAdmin, Username: "pastor", ChurchID: "c1",
	}
	memberProfile = &model.UserProfile{
		ID: "u-member", Email: "ana@igreja.org", Name: "Ana",
		Role: model.RoleUser, Username: "ana", ChurchID: "c1",
	}
)

// fakeBackend はバックエンドAPIを模したテスト用サーバー。
// status にリソースのパスを設定すると、そのステータスを返す。
type fakeBackend struct {
	mu       sync.Mutex
	status   map[string]int
	events   []model.CanonicalEvent
	received map[string][]byte
	auths    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		status:   map[string]int{},
		received: map[string][]byte{},
		events: []model.CanonicalEvent{
			canonicalEvent("e1", "Culto de Domingo", "2025-03-02T19:00:00"),
			canonicalEvent("e2", "Retiro de Jovens", "2025-04-20T08:00:00"),
		},
	}
}

func canonicalEvent(id, name, start string) model.CanonicalEvent {
	ts, _ := model.ParseTimestamp(start)
	return model.CanonicalEvent{
		ID:            id,
		ChurchID:      "c1",
		Name:          name,
		Description:   "Descrição do evento",
		StartDatetime: ts,
		Location:      "Templo",
		CreatedBy:     "pastor",
		Participants: []model.Participant{
			{ID: "p1", MemberID: "m1", Role: model.RoleSpeaker},
		},
	}
}

func (f *fakeBackend) fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = status
}

func (f *fakeBackend) body(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[path]
}

func (f *fakeBackend) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.received[r.URL.Path] = b
			f.auths = append(f.auths, r.Header.Get("Authorization"))
			status, ok := f.status[r.URL.Path]
			f.mu.Unlock()
			if ok {
				w.WriteHeader(status)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(b))
			next.ServeHTTP(w, r)
		})
	})

	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var c model.Credentials
		json.NewDecoder(r.Body).Decode(&c)
		switch c.Email {
		case adminProfile.Email:
			reply(w, http.StatusOK, model.AuthResponse{Token: "jwt-admin", User: adminProfile})
		case memberProfile.Email:
			reply(w, http.StatusOK, model.AuthResponse{Token: "jwt-member", User: memberProfile})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusCreated, model.AuthResponse{Token: "jwt-new", User: memberProfile})
	})
	r.Get("/churches", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []model.Church{{ID: "c1", Name: "Igreja Central"}})
	})
	r.Get("/events/user/{userId}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, f.events)
	})
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, f.events)
	})
	r.Get("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, e := range f.events {
			if e.ID == chi.URLParam(r, "id") {
				reply(w, http.StatusOK, e)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
		var req model.EventRequest
		json.NewDecoder(r.Body).Decode(&req)
		created := canonicalEvent("e-new", req.Name, req.StartDatetime)
		reply(w, http.StatusCreated, created)
	})
	r.Put("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req model.EventRequest
		json.NewDecoder(r.Body).Decode(&req)
		reply(w, http.StatusOK, canonicalEvent(chi.URLParam(r, "id"), req.Name, req.StartDatetime))
	})
	r.Delete("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/events/{id}/participants", func(w http.ResponseWriter, r *http.Request) {
		var reqs []model.ParticipantRequest
		json.NewDecoder(r.Body).Decode(&reqs)
		out := make([]model.Participant, 0, len(reqs))
		for i, p := range reqs {
			out = append(out, model.Participant{ID: string(rune('a' + i)), MemberID: p.MemberID, Role: p.Role})
		}
		reply(w, http.StatusCreated, out)
	})
	r.Get("/members/church/{churchId}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []model.Member{{ID: "m1", Name: "Maria", ChurchID: "c1"}})
	})
	r.Get("/members/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, model.Member{ID: chi.URLParam(r, "id"), Name: "Maria", ChurchID: "c1"})
	})
	return r
}

// recordingPublisher は送信された監査レコードを保持する。
type recordingPublisher struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (p *recordingPublisher) Publish(ctx context.Context, e audit.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type countingMetrics struct {
	mu            sync.Mutex
	invalidations []string
	logins        []string
}

func (m *countingMetrics) RecordSessionInvalidation(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations = append(m.invalidations, reason)
}

func (m *countingMetrics) RecordLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, result)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// testEnv はルーター全体を組み立てたテスト環境。
// namespace はブラウザが保持しているsession_idで、再発行されたCookieに追従する。
type testEnv struct {
	router    http.Handler
	namespace string
	backend   *fakeBackend
	repo      *repository.MemoryClientStateRepo
	deps      *Deps
	audit     *recordingPublisher
	metrics   *countingMetrics
	logs      *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fb := newFakeBackend()
	server := httptest.NewServer(fb.handler())
	t.Cleanup(server.Close)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := backend.NewClient(server.Client(), logger, server.URL)
	repo := repository.NewMemoryClientStateRepo()
	normalizer := event.NewNormalizer(time.UTC, func() time.Time { return testNow })
	pub := &recordingPublisher{}
	m := &countingMetrics{}

	deps := &Deps{
		Backend:    client,
		Sessions:   session.NewFactory(repo, client, logger),
		Normalizer: normalizer,
		Exporter:   calendar.NewExporter(normalizer),
		Tracker:    loading.NewTracker(),
		Auditor:    audit.NewAuditor(pub, logger, func() time.Time { return testNow }),
		Metrics:    m,
		Logger:     logger,
	}

	router := NewRouter(&RouterDeps{
		Deps:              deps,
		HealthChecker:     &mockHealthChecker{},
		CORSAllowedOrigin: "http://localhost:4200",
	})

	return &testEnv{
		router:    router,
		namespace: testNamespace,
		backend:   fb,
		repo:      repo,
		deps:      deps,
		audit:     pub,
		metrics:   m,
		logs:      &logs,
	}
}

// do はセッションCookieとCSRFトークンを付与してリクエストを送る。
func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: e.namespace})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if c := sessionCookie(rec); c != nil {
		e.namespace = c.Value
	}
	return rec
}

// sessionCookie はレスポンスで設定されたsession_idのCookieを返す。なければnil。
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	return nil
}

// login は指定したユーザーでログインする。
func (e *testEnv) login(t *testing.T, user *model.UserProfile) {
	t.Helper()
	rec := e.do(http.MethodPost, "/app/auth/login", map[string]string{
		"email": user.Email, "password": "segredo123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ログインに失敗: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	return decodeBody[middleware.ErrorResponseBody](t, rec)
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
