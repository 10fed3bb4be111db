package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/churchadmin/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), server.URL+"/api"), &buf
}

// fakeAuthorizer はテスト用のAuthorizer。
type fakeAuthorizer struct {
	mu       sync.Mutex
	token    string
	failures []int
}

func (f *fakeAuthorizer) Token(ctx context.Context) (string, error) {
	return f.token, nil
}

func (f *fakeAuthorizer) HandleAuthFailure(ctx context.Context, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, status)
}

type recordedCall struct {
	resource string
	status   int
}

type fakeRecorder struct {
	calls []recordedCall
}

func (r *fakeRecorder) RecordBackendRequest(resource string, status int, d time.Duration) {
	r.calls = append(r.calls, recordedCall{resource, status})
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c := NewClient(http.DefaultClient, slog.Default(), "")
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}

func TestClient_Login_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("リクエスト = %s %s, want POST /api/auth/login", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("認証系リクエストに Authorization を付与してはならない: %q", got)
		}
		var body model.Credentials
		json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "ana@igreja.org" || body.Password != "segredo" {
			t.Errorf("body = %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt-1",
			"user":  map[string]any{"id": "u1", "email": "ana@igreja.org", "name": "Ana", "role": "ADMIN", "username": "ana", "churchId": "c1"},
		})
	})

	resp, err := c.Login(context.Background(), "ana@igreja.org", "segredo")
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if resp.Token != "jwt-1" || resp.User.Role != model.RoleAdmin || resp.User.ChurchID != "c1" {
		t.Errorf("resp = %+v / %+v", resp, resp.User)
	}
}

func TestClient_Login_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Login(context.Background(), "ana@igreja.org", "errada")
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("*model.APIError が返るべき: %v", err)
	}
	if apiErr.Message != MsgLoginFailed || apiErr.Status != 401 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_Login_MissingUserIsInvalidResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"jwt"}`))
	})

	_, err := c.Login(context.Background(), "a@b.c", "secret")
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Message != MsgInvalidResponse {
		t.Errorf("err = %v, want invalid response", err)
	}
}

func TestClient_ConnectionFailureIsConnectivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	rec := &fakeRecorder{}
	c := NewClient(&http.Client{Timeout: time.Second}, newTestLogger(&buf), url).WithRecorder(rec)

	_, err := c.ListChurches(context.Background())
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("*model.APIError が返るべき: %v", err)
	}
	if apiErr.Kind != model.KindConnectivity || apiErr.Status != 0 {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if len(rec.calls) != 1 || rec.calls[0].status != 0 || rec.calls[0].resource != "churches" {
		t.Errorf("recorded = %+v", rec.calls)
	}
}

func TestClient_TimeoutIsConnectivity(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.ListChurches(context.Background())
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Kind != model.KindConnectivity {
		t.Errorf("err = %v, want connectivity error", err)
	}
}

func TestClient_ListChurches_EmptyBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})

	churches, err := c.ListChurches(context.Background())
	if err != nil {
		t.Fatalf("ListChurches がエラーを返した: %v", err)
	}
	if churches == nil || len(churches) != 0 {
		t.Errorf("churches = %v, want empty non-nil", churches)
	}
}

func TestSessionClient_SendsBearerToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-9" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer jwt-9")
		}
		if r.URL.Path != "/api/events" || r.URL.Query().Get("churchId") != "c 1" {
			t.Errorf("URL = %s", r.URL.String())
		}
		w.Write([]byte(`[{"id":"e1","name":"Culto","startDatetime":"2025-12-01T10:00:00","participants":[{"id":"p1"}]}]`))
	})

	events, err := c.ForSession(&fakeAuthorizer{token: "jwt-9"}).ListChurchEvents(context.Background(), "c 1")
	if err != nil {
		t.Fatalf("ListChurchEvents がエラーを返した: %v", err)
	}
	if len(events) != 1 || events[0].StartDatetime.String() != "2025-12-01T10:00:00" || len(events[0].Participants) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestSessionClient_UnauthorizedNotifiesAuthorizer(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		authz := &fakeAuthorizer{token: "jwt"}

		_, err := c.ForSession(authz).ListUserEvents(context.Background(), "u1")
		apiErr, ok := model.AsAPIError(err)
		if !ok || !apiErr.IsAuth() {
			t.Fatalf("status %d: err = %v, want auth error", status, err)
		}
		if len(authz.failures) != 1 || authz.failures[0] != status {
			t.Errorf("status %d: failures = %v", status, authz.failures)
		}
	}
}

func TestSessionClient_NotFoundDoesNotNotify(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	authz := &fakeAuthorizer{token: "jwt"}

	_, err := c.ForSession(authz).GetEvent(context.Background(), "missing")
	apiErr, _ := model.AsAPIError(err)
	if apiErr == nil || apiErr.Kind != model.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(authz.failures) != 0 {
		t.Errorf("failures = %v, want none", authz.failures)
	}
}

func TestSessionClient_NoTokenSkipsNetwork(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	authz := &fakeAuthorizer{}

	_, err := c.ForSession(authz).ListChurchMembers(context.Background(), "c1")
	if called {
		t.Error("トークンがない場合はリクエストを送信してはならない")
	}
	if apiErr, ok := model.AsAPIError(err); !ok || apiErr.Status != 401 {
		t.Errorf("err = %v, want 401", err)
	}
	if len(authz.failures) != 1 {
		t.Errorf("failures = %v, want [401]", authz.failures)
	}
}

func TestSessionClient_AddParticipants_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"count", `{"count":5}`, 5},
		{"participants", `{"participants":[{"id":"1"},{"id":"2"}]}`, 2},
		{"array", `[{"id":"1"},{"id":"2"},{"id":"3"}]`, 3},
		{"empty", ``, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/events/e1/participants" {
					t.Errorf("path = %s", r.URL.Path)
				}
				var reqs []model.ParticipantRequest
				if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil || len(reqs) != 2 {
					t.Errorf("配列ボディが送信されるべき: %v %v", reqs, err)
				}
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(tt.body))
			})

			res, err := c.ForSession(&fakeAuthorizer{token: "t"}).AddParticipants(context.Background(), "e1", []model.ParticipantRequest{
				{MemberID: "m1", Role: model.RoleParticipant, RegisteredAt: "2025-01-01T00:00:00.000Z"},
				{MemberID: "m2", Role: model.RoleVolunteer, RegisteredAt: "2025-01-01T00:00:00.000Z"},
			})
			if err != nil {
				t.Fatalf("AddParticipants がエラーを返した: %v", err)
			}
			if res.Count != tt.want {
				t.Errorf("Count = %d, want %d", res.Count, tt.want)
			}
		})
	}
}

func TestSessionClient_AddParticipants_Conflict(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	_, err := c.ForSession(&fakeAuthorizer{token: "t"}).AddParticipants(context.Background(), "e1", nil)
	apiErr, _ := model.AsAPIError(err)
	if apiErr == nil || apiErr.Message != MsgDuplicateMember {
		t.Errorf("err = %v, want duplicate participant message", err)
	}
}

func TestSessionClient_DeleteEvent_ServerMessage(t *testing.T) {
	c, buf := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"Evento possui participantes"}`))
	})

	err := c.ForSession(&fakeAuthorizer{token: "t"}).DeleteEvent(context.Background(), "e1")
	apiErr, _ := model.AsAPIError(err)
	if apiErr == nil || apiErr.Message != "Evento possui participantes" {
		t.Errorf("err = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"http_status":422`)) {
		t.Errorf("ログに http_status が含まれるべき: %s", buf.String())
	}
}

func TestSessionClient_CreateAndUpdateEvent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req model.EventRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"id":"e1","name":"` + req.Name + `","startDatetime":"` + req.StartDatetime + `"}`))
	})
	sc := c.ForSession(&fakeAuthorizer{token: "t"})
	req := model.EventRequest{Name: "Culto", StartDatetime: "2025-03-10T13:00:00.000Z"}

	created, err := sc.CreateEvent(context.Background(), req)
	if err != nil || created.Name != "Culto" {
		t.Fatalf("CreateEvent = %+v, %v", created, err)
	}
	updated, err := sc.UpdateEvent(context.Background(), "e1", req)
	if err != nil || updated.ID != "e1" {
		t.Fatalf("UpdateEvent = %+v, %v", updated, err)
	}
}

func TestSessionClient_GetMember_EscapesPath(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/members/a%2Fb" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`{"id":"a/b","name":"Maria"}`))
	})

	m, err := c.ForSession(&fakeAuthorizer{token: "t"}).GetMember(context.Background(), "a/b")
	if err != nil || m.Name != "Maria" {
		t.Errorf("GetMember = %+v, %v", m, err)
	}
}
