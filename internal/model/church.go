package model

// Church は教会を表す。
type Church struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member は教会の会員を表す。
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	ChurchID  string    `json:"churchId"`
	Role      string    `json:"role,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}
