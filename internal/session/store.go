// Package session はブラウザごとの認証状態（トークンとプロフィール）を管理する。
//
// トークンとプロフィールは2つのキーに分けて保存するが、書き込みと削除は
// 常に両方まとめて行い、片方だけが残る状態を作らない。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/churchadmin/internal/model"
	"github.com/hitoshi/churchadmin/internal/repository"
)

const (
	// KeyToken はトークンを保存するキー。
	KeyToken = "auth_token"
	// KeyUser はプロフィール（JSON）を保存するキー。
	KeyUser = "auth_user"
)

// Authenticator は認証APIを呼び出す。
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.AuthResponse, error)
	Register(ctx context.Context, data model.RegisterData) (*model.AuthResponse, error)
}

// Session は認証状態の操作。ハンドラーはこのインターフェース経由で利用する。
type Session interface {
	Login(ctx context.Context, email, password string) (*model.UserProfile, error)
	Register(ctx context.Context, data model.RegisterData) (*model.UserProfile, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	GetUser(ctx context.Context) *model.UserProfile
}

// Store は1つのブラウザ（namespace）の認証状態を保持する。
type Store struct {
	namespace string
	repo      repository.ClientStateRepository
	auth      Authenticator
	logger    *slog.Logger
}

// NewStore はStoreを生成する。
func NewStore(namespace string, repo repository.ClientStateRepository, auth Authenticator, logger *slog.Logger) *Store {
	return &Store{
		namespace: namespace,
		repo:      repo,
		auth:      auth,
		logger:    logger,
	}
}

// Namespace はStoreが対象とするnamespaceを返す。
func (s *Store) Namespace() string {
	return s.namespace
}

// Login はログインし、成功した場合のみトークンとプロフィールを保存する。
// 失敗時は分類済みのエラーを返し、保存済みの状態には触れない。
func (s *Store) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Register はアカウントを登録し、成功時はログインと同様にセッションを保存する。
func (s *Store) Register(ctx context.Context, data model.RegisterData) (*model.UserProfile, error) {
	resp, err := s.auth.Register(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (s *Store) save(ctx context.Context, resp *model.AuthResponse) error {
	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}

	if err := s.repo.SetItems(ctx, s.namespace, map[string]string{
		KeyToken: resp.Token,
		KeyUser:  string(userJSON),
	}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Logout はトークンとプロフィールを削除する。セッションがなくてもエラーにならない。
func (s *Store) Logout(ctx context.Context) error {
	if err := s.repo.RemoveItems(ctx, s.namespace, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Token は保存済みのトークンを返す。未ログインの場合は空文字列。
func (s *Store) Token(ctx context.Context) (string, error) {
	items, err := s.repo.GetItems(ctx, s.namespace, KeyToken)
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return items[KeyToken], nil
}

// IsAuthenticated はトークンが保存されているかどうかを返す。
// プロフィールの有無は見ない。読み取りに失敗した場合は未ログインとして扱う。
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	if err != nil {
		s.logger.Error("セッションの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}
	return token != ""
}

// GetUser はキャッシュ済みのプロフィールを返す。
// 存在しない、または壊れていて読み込めない場合はnilを返す。
func (s *Store) GetUser(ctx context.Context) *model.UserProfile {
	items, err := s.repo.GetItems(ctx, s.namespace, KeyUser)
	if err != nil {
		s.logger.Error("プロフィールの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil
	}

	raw, ok := items[KeyUser]
	if !ok || raw == "" {
		return nil
	}

	var user model.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("保存済みのプロフィールを読み込めません",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &user
}

// Snapshot はトークンとプロフィールを1回の読み取りで取得する。
func (s *Store) Snapshot(ctx context.Context) (model.Session, error) {
	items, err := s.repo.GetItems(ctx, s.namespace, KeyToken, KeyUser)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	sess := model.Session{Token: items[KeyToken]}
	if raw := items[KeyUser]; raw != "" {
		var user model.UserProfile
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			sess.User = &user
		} else {
			s.logger.Warn("保存済みのプロフィールを読み込めません",
				slog.String("error", err.Error()),
			)
		}
	}
	return sess, nil
}

var _ Session = (*Store)(nil)

// Factory はnamespaceごとのStoreを生成する。
type Factory struct {
	repo   repository.ClientStateRepository
	auth   Authenticator
	logger *slog.Logger
}

// NewFactory はFactoryを生成する。
func NewFactory(repo repository.ClientStateRepository, auth Authenticator, logger *slog.Logger) *Factory {
	return &Factory{repo: repo, auth: auth, logger: logger}
}

// For はnamespaceに対応するStoreを返す。
func (f *Factory) For(namespace string) *Store {
	return NewStore(namespace, f.repo, f.auth, f.logger)
}
