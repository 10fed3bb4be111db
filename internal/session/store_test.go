package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/churchadmin/internal/model"
	"github.com/hitoshi/churchadmin/internal/repository"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockAuthenticator はテスト用のAuthenticator。
type mockAuthenticator struct {
	loginFn    func(ctx context.Context, email, password string) (*model.AuthResponse, error)
	registerFn func(ctx context.Context, data model.RegisterData) (*model.AuthResponse, error)
}

func (m *mockAuthenticator) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthenticator) Register(ctx context.Context, data model.RegisterData) (*model.AuthResponse, error) {
	return m.registerFn(ctx, data)
}

func authOK(token string, user *model.UserProfile) func(context.Context, string, string) (*model.AuthResponse, error) {
	return func(context.Context, string, string) (*model.AuthResponse, error) {
		return &model.AuthResponse{Token: token, User: user}, nil
	}
}

// failingRepo は書き込み・読み取りが失敗するリポジトリ。
type failingRepo struct{}

func (failingRepo) GetItems(ctx context.Context, ns string, keys ...string) (map[string]string, error) {
	return nil, errors.New("db down")
}
func (failingRepo) SetItems(ctx context.Context, ns string, items map[string]string) error {
	return errors.New("db down")
}
func (failingRepo) RemoveItems(ctx context.Context, ns string, keys ...string) error {
	return errors.New("db down")
}

var (
	adminUser = &model.UserProfile{ID: "u1", Email: "pastor@igreja.org", Name: "Pastor", Role: model.RoleAdmin, Username: "pastor", ChurchID: "c1"}
	plainUser = &model.UserProfile{ID: "u2", Email: "ana@igreja.org", Name: "Ana", Role: model.RoleUser, Username: "ana", ChurchID: "c1"}
)

func newTestStore(auth Authenticator) (*Store, *repository.MemoryClientStateRepo) {
	repo := repository.NewMemoryClientStateRepo()
	var buf bytes.Buffer
	return NewStore("ns-1", repo, auth, newTestLogger(&buf)), repo
}

func TestStore_Login_PersistsTokenAndProfile(t *testing.T) {
	store, repo := newTestStore(&mockAuthenticator{loginFn: authOK("jwt-1", adminUser)})
	ctx := context.Background()

	// 以前のプロフィールが残っていても新しいレスポンスで置き換わる
	repo.SetItems(ctx, "ns-1", map[string]string{KeyToken: "old", KeyUser: `{"id":"old"}`})

	user, err := store.Login(ctx, "pastor@igreja.org", "segredo")
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
	if !store.IsAuthenticated(ctx) {
		t.Error("ログイン後は IsAuthenticated() == true であるべき")
	}
	if got := store.GetUser(ctx); got == nil || *got != *adminUser {
		t.Errorf("GetUser() = %+v, want %+v", got, adminUser)
	}
	if tok, _ := store.Token(ctx); tok != "jwt-1" {
		t.Errorf("Token() = %q, want jwt-1", tok)
	}
}

func TestStore_Login_FailureStoresNothing(t *testing.T) {
	want := &model.APIError{Code: model.ErrCodeUnauthorized, Kind: model.KindAuth, Status: 401}
	store, repo := newTestStore(&mockAuthenticator{
		loginFn: func(context.Context, string, string) (*model.AuthResponse, error) { return nil, want },
	})

	_, err := store.Login(context.Background(), "a@b.c", "errada")
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if repo.Len() != 0 {
		t.Error("失敗時は何も保存してはならない")
	}
}

func TestStore_Register_PersistsSession(t *testing.T) {
	store, _ := newTestStore(&mockAuthenticator{
		registerFn: func(ctx context.Context, d model.RegisterData) (*model.AuthResponse, error) {
			if d.Username != "ana" {
				t.Errorf("Username = %q", d.Username)
			}
			return &model.AuthResponse{Token: "jwt-2", User: plainUser}, nil
		},
	})
	ctx := context.Background()

	user, err := store.Register(ctx, model.RegisterData{Name: "Ana", Username: "ana"})
	if err != nil {
		t.Fatalf("Register がエラーを返した: %v", err)
	}
	if user.Role != model.RoleUser || !store.IsAuthenticated(ctx) {
		t.Errorf("登録後のセッションが不正: %+v", user)
	}
}

func TestStore_Logout_IsIdempotent(t *testing.T) {
	store, repo := newTestStore(&mockAuthenticator{loginFn: authOK("jwt-1", plainUser)})
	ctx := context.Background()

	if _, err := store.Login(ctx, "ana@igreja.org", "segredo"); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Logout(ctx); err != nil {
			t.Fatalf("Logout(%d回目) がエラーを返した: %v", i+1, err)
		}
		if store.IsAuthenticated(ctx) {
			t.Error("Logout 後は IsAuthenticated() == false であるべき")
		}
		if store.GetUser(ctx) != nil {
			t.Error("Logout 後は GetUser() == nil であるべき")
		}
	}
	if repo.Len() != 0 {
		t.Errorf("Logout 後に状態が残っている: Len() = %d", repo.Len())
	}
}

func TestStore_GetUser_CorruptProfileIsAbsent(t *testing.T) {
	store, repo := newTestStore(&mockAuthenticator{})
	ctx := context.Background()
	repo.SetItems(ctx, "ns-1", map[string]string{KeyToken: "jwt", KeyUser: "{not json"})

	if store.GetUser(ctx) != nil {
		t.Error("壊れたプロフィールは nil として扱うべき")
	}
	// トークンだけで認証済みと判定する
	if !store.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() はトークンのみを見るべき")
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot がエラーを返した: %v", err)
	}
	if snap.Token != "jwt" || snap.User != nil {
		t.Errorf("Snapshot = %+v", snap)
	}
}

func TestStore_RepositoryFailure(t *testing.T) {
	var buf bytes.Buffer
	store := NewStore("ns", failingRepo{}, &mockAuthenticator{loginFn: authOK("jwt", plainUser)}, newTestLogger(&buf))
	ctx := context.Background()

	if _, err := store.Login(ctx, "a@b.c", "secret"); err == nil {
		t.Error("保存に失敗した場合はエラーを返すべき")
	}
	if store.IsAuthenticated(ctx) {
		t.Error("読み取り失敗時は未ログインとして扱うべき")
	}
	if store.GetUser(ctx) != nil {
		t.Error("読み取り失敗時は GetUser() == nil であるべき")
	}
	if err := store.Logout(ctx); err == nil {
		t.Error("削除に失敗した場合はエラーを返すべき")
	}
}

func TestFactory_ForIsolatesNamespaces(t *testing.T) {
	repo := repository.NewMemoryClientStateRepo()
	var buf bytes.Buffer
	f := NewFactory(repo, &mockAuthenticator{loginFn: authOK("jwt", plainUser)}, newTestLogger(&buf))
	ctx := context.Background()

	if _, err := f.For("browser-a").Login(ctx, "ana@igreja.org", "segredo"); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if f.For("browser-b").IsAuthenticated(ctx) {
		t.Error("他のブラウザのセッションが見えてはならない")
	}
	if f.For("browser-a").Namespace() != "browser-a" {
		t.Error("Namespace() が一致しない")
	}
}
