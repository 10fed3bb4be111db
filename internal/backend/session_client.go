package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/churchadmin/internal/model"
)

// Authorizer は保護されたリソースの呼び出しに必要な認証情報を提供する。
type Authorizer interface {
	// Token は現在のセッションのトークンを返す。未ログインの場合は空文字列。
	Token(ctx context.Context) (string, error)
	// HandleAuthFailure は保護されたリソースが401/403を返したときに呼ばれる。
	HandleAuthFailure(ctx context.Context, status int)
}

// SessionClient はセッションのトークンを付与して保護されたリソースを呼び出す。
type SessionClient struct {
	*Client
	authz Authorizer
}

// ForSession はセッションに紐づくクライアントを返す。
func (c *Client) ForSession(authz Authorizer) *SessionClient {
	return &SessionClient{Client: c, authz: authz}
}

// protected はBearerトークンを付与して呼び出し、401/403の場合は Authorizer に通知する。
func (s *SessionClient) protected(ctx context.Context, cl call) error {
	token, err := s.authz.Token(ctx)
	if err != nil {
		s.logger.Error("セッションからトークンを取得できませんでした",
			slog.String("resource", string(cl.resource)),
			slog.String("error", err.Error()),
		)
		return unknownError(cl.resource, 0, "")
	}

	// トークンがない場合は送信せずに401として扱う
	if token == "" {
		apiErr := Classify(cl.resource, http.StatusUnauthorized, "")
		s.authz.HandleAuthFailure(ctx, http.StatusUnauthorized)
		return apiErr
	}

	cl.token = token
	err = s.do(ctx, cl)
	if apiErr, ok := model.AsAPIError(err); ok && apiErr.IsAuth() && !cl.resource.IsAuthRoute() {
		s.authz.HandleAuthFailure(ctx, apiErr.Status)
	}
	return err
}

// ListUserEvents はユーザーが関係するイベント一覧を取得する。
func (s *SessionClient) ListUserEvents(ctx context.Context, userID string) ([]model.CanonicalEvent, error) {
	var events []model.CanonicalEvent
	if err := s.protected(ctx, call{
		resource: ResourceUserEvents,
		method:   http.MethodGet,
		path:     pathf("/events/user/%s", userID),
		out:      &events,
	}); err != nil {
		return nil, err
	}
	return nonNilEvents(events), nil
}

// ListChurchEvents は教会のイベント一覧を取得する。
func (s *SessionClient) ListChurchEvents(ctx context.Context, churchID string) ([]model.CanonicalEvent, error) {
	var events []model.CanonicalEvent
	if err := s.protected(ctx, call{
		resource: ResourceChurchEvents,
		method:   http.MethodGet,
		path:     "/events",
		query:    url.Values{"churchId": {churchID}},
		out:      &events,
	}); err != nil {
		return nil, err
	}
	return nonNilEvents(events), nil
}

// GetEvent はイベントの詳細を取得する。
func (s *SessionClient) GetEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	var e model.CanonicalEvent
	if err := s.protected(ctx, call{
		resource: ResourceEvent,
		method:   http.MethodGet,
		path:     pathf("/events/%s", id),
		out:      &e,
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent はイベントを作成する。
func (s *SessionClient) CreateEvent(ctx context.Context, req model.EventRequest) (*model.CanonicalEvent, error) {
	var e model.CanonicalEvent
	if err := s.protected(ctx, call{
		resource: ResourceEventCreate,
		method:   http.MethodPost,
		path:     "/events",
		body:     req,
		out:      &e,
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent はイベントを更新する。
func (s *SessionClient) UpdateEvent(ctx context.Context, id string, req model.EventRequest) (*model.CanonicalEvent, error) {
	var e model.CanonicalEvent
	if err := s.protected(ctx, call{
		resource: ResourceEventUpdate,
		method:   http.MethodPut,
		path:     pathf("/events/%s", id),
		body:     req,
		out:      &e,
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEvent はイベントを削除する。
func (s *SessionClient) DeleteEvent(ctx context.Context, id string) error {
	return s.protected(ctx, call{
		resource: ResourceEventDelete,
		method:   http.MethodDelete,
		path:     pathf("/events/%s", id),
	})
}

// AddParticipants はイベントに参加者をまとめて追加する。
// レスポンスはオブジェクト（count/participants）と配列のどちらも受け付ける。
// 件数は count、participants の件数、送信件数の順に決める。
func (s *SessionClient) AddParticipants(ctx context.Context, eventID string, participants []model.ParticipantRequest) (*model.AddParticipantsResult, error) {
	var raw json.RawMessage
	if err := s.protected(ctx, call{
		resource: ResourceParticipants,
		method:   http.MethodPost,
		path:     pathf("/events/%s/participants", eventID),
		body:     participants,
		out:      &raw,
	}); err != nil {
		return nil, err
	}

	result := &model.AddParticipantsResult{}
	if len(raw) > 0 {
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &result.Participants); err != nil {
				return nil, invalidResponse(ResourceParticipants, http.StatusOK)
			}
		} else if err := json.Unmarshal(raw, result); err != nil {
			return nil, invalidResponse(ResourceParticipants, http.StatusOK)
		}
	}

	if result.Count == 0 {
		result.Count = len(result.Participants)
	}
	if result.Count == 0 {
		result.Count = len(participants)
	}
	return result, nil
}

// ListChurchMembers は教会の会員一覧を取得する。
func (s *SessionClient) ListChurchMembers(ctx context.Context, churchID string) ([]model.Member, error) {
	var members []model.Member
	if err := s.protected(ctx, call{
		resource: ResourceMembers,
		method:   http.MethodGet,
		path:     pathf("/members/church/%s", churchID),
		out:      &members,
	}); err != nil {
		return nil, err
	}
	if members == nil {
		members = []model.Member{}
	}
	return members, nil
}

// GetMember は会員を1件取得する。
func (s *SessionClient) GetMember(ctx context.Context, memberID string) (*model.Member, error) {
	var m model.Member
	if err := s.protected(ctx, call{
		resource: ResourceMember,
		method:   http.MethodGet,
		path:     pathf("/members/%s", memberID),
		out:      &m,
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

func nonNilEvents(events []model.CanonicalEvent) []model.CanonicalEvent {
	if events == nil {
		return []model.CanonicalEvent{}
	}
	return events
}
