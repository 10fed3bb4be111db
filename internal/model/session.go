package model

// Session はブラウザごとに保持する認証状態。
// トークンとプロフィールは常に一緒に保存・削除される。
type Session struct {
	Token string
	User  *UserProfile
}

// Navigation は画面遷移の指示を表す。
type Navigation struct {
	Path      string `json:"path"`
	ReturnURL string `json:"returnUrl,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
