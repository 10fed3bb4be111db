// Package model はドメインモデルを定義する。
package model

// Role はユーザーの権限区分を表す。
// 値はバックエンドのワイヤ表現（"ADMIN" / "USER"）と一致する。
type Role string

const (
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
	// RoleUser は一般ユーザー。
	RoleUser Role = "USER"
)

// ParseRole はワイヤ上の文字列をRoleに変換する。
// 未知の値はRoleUserとして扱う（管理者権限を誤って付与しないため）。
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Label はRoleの表示名を返す。
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrador"
	default:
		return "Usuário"
	}
}

// IsAdmin は管理者かどうかを返す。
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// UnmarshalText はRoleのテキスト表現を解釈する。
func (r *Role) UnmarshalText(b []byte) error {
	*r = ParseRole(string(b))
	return nil
}

// UserProfile はログイン中ユーザーのプロフィールを表す。
// Session Storeがトークンと共にキャッシュする。
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Username string `json:"username"`
	ChurchID string `json:"churchId"`
}

// AuthResponse は /auth/login および /auth/register のレスポンス。
type AuthResponse struct {
	Token string       `json:"token"`
	User  *UserProfile `json:"user"`
}

// Credentials はログインリクエストのボディ。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterData はアカウント登録リクエストのボディ。
type RegisterData struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	ChurchID string `json:"churchId"`
}
