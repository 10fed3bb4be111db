// Package backend は教会管理バックエンド（/api）のHTTPクライアントを提供する。
// 失敗は全て Classify で分類済みの *model.APIError として返し、
// 通信レイヤーのエラーを呼び出し元に漏らさない。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/churchadmin/internal/model"
)

const (
	// DefaultBaseURL はバックエンドAPIのデフォルトのベースURL。
	DefaultBaseURL = "http://localhost:8080/api"
	// maxBodySize はレスポンスボディの最大読み取りサイズ。
	maxBodySize = 5 << 20
)

// Recorder はバックエンド呼び出しの計測を記録する。
type Recorder interface {
	RecordBackendRequest(resource string, status int, duration time.Duration)
}

// Client はバックエンドAPIのクライアント。
// トークンを必要としない /auth/* と教会一覧はこのClientから直接呼び出す。
// 保護されたリソースは ForSession で得た SessionClient から呼び出す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	recorder   Recorder
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithRecorder はメトリクスの記録先を設定する。
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// call は1回のバックエンド呼び出しを表す。
type call struct {
	resource Resource
	method   string
	path     string
	query    url.Values
	body     any
	token    string
	out      any
}

// errorBody はバックエンドのエラーレスポンス。
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do はHTTPリクエストを実行し、成功時はレスポンスを out にデコードする。
// 失敗時は常に分類済みの *model.APIError を返す。
func (c *Client) do(ctx context.Context, cl call) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, cl)
	if c.recorder != nil {
		c.recorder.RecordBackendRequest(string(cl.resource), status, time.Since(start))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, cl call) (int, error) {
	// 1. リクエストURL構築
	reqURL := c.baseURL + cl.path
	if len(cl.query) > 0 {
		reqURL += "?" + cl.query.Encode()
	}

	// 2. リクエストボディ
	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			c.logger.Error("リクエストボディのエンコードに失敗しました",
				slog.String("resource", string(cl.resource)),
				slog.String("error", err.Error()),
			)
			return 0, unknownError(cl.resource, 0, "")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, reqURL, body)
	if err != nil {
		c.logger.Error("HTTPリクエストの作成に失敗しました",
			slog.String("resource", string(cl.resource)),
			slog.String("error", err.Error()),
		)
		return 0, unknownError(cl.resource, 0, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	// 3. HTTPリクエスト実行（タイムアウト・キャンセルは接続失敗として扱う）
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("バックエンドAPIに接続できませんでした",
			slog.String("resource", string(cl.resource)),
			slog.String("method", cl.method),
			slog.String("path", cl.path),
			slog.Bool("canceled", errors.Is(err, context.Canceled)),
			slog.String("error", err.Error()),
		)
		return 0, Classify(cl.resource, 0, "")
	}
	defer resp.Body.Close()

	// 4. レスポンスボディ読み取り
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.logger.Warn("レスポンスボディの読み取りに失敗しました",
			slog.String("resource", string(cl.resource)),
			slog.String("error", err.Error()),
		)
		return resp.StatusCode, Classify(cl.resource, 0, "")
	}

	// 5. HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		apiErr := Classify(cl.resource, resp.StatusCode, firstNonEmpty(eb.Message, eb.Error))

		level := slog.LevelWarn
		if resp.StatusCode >= 500 {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "バックエンドAPIがエラーステータスを返しました",
			slog.String("resource", string(cl.resource)),
			slog.String("method", cl.method),
			slog.String("path", cl.path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("kind", string(apiErr.Kind)),
		)
		return resp.StatusCode, apiErr
	}

	// 6. JSONデコード
	if cl.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, cl.out); err != nil {
			c.logger.Error("バックエンドAPIのレスポンスのパースに失敗しました",
				slog.String("resource", string(cl.resource)),
				slog.String("error", err.Error()),
			)
			return resp.StatusCode, invalidResponse(cl.resource, resp.StatusCode)
		}
	}

	return resp.StatusCode, nil
}

// unknownError はHTTPステータスによらず UnknownError に分類されるエラーを生成する。
func unknownError(resource Resource, status int, message string) *model.APIError {
	e := Classify(resource, -1, message)
	e.Status = status
	return e
}

// invalidResponse はデコードできないレスポンスのエラーを生成する。
func invalidResponse(resource Resource, status int) *model.APIError {
	return unknownError(resource, status, MsgInvalidResponse)
}

// Login はメールアドレスとパスワードでログインする。
// /auth/login の401/403はセッション破棄の対象外で、呼び出し元が処理する。
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, call{
		resource: ResourceLogin,
		method:   http.MethodPost,
		path:     "/auth/login",
		body:     model.Credentials{Email: email, Password: password},
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, invalidResponse(ResourceLogin, http.StatusOK)
	}
	return &resp, nil
}

// Register はアカウントを登録する。成功時のレスポンスはログインと同じ形式。
func (c *Client) Register(ctx context.Context, data model.RegisterData) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, call{
		resource: ResourceRegister,
		method:   http.MethodPost,
		path:     "/auth/register",
		body:     data,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, invalidResponse(ResourceRegister, http.StatusOK)
	}
	return &resp, nil
}

// ListChurches は教会一覧を取得する。登録画面から未ログインで呼ばれる。
func (c *Client) ListChurches(ctx context.Context) ([]model.Church, error) {
	var churches []model.Church
	if err := c.do(ctx, call{
		resource: ResourceChurches,
		method:   http.MethodGet,
		path:     "/churches",
		out:      &churches,
	}); err != nil {
		return nil, err
	}
	if churches == nil {
		churches = []model.Church{}
	}
	return churches, nil
}

// pathf はパスパラメータをエスケープしてパスを組み立てる。
func pathf(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}
