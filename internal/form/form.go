// Package form は画面から送信されるフォームの入力検証を提供する。
// 検証に失敗した入力はバックエンドに送信せず、フィールド単位のエラーとして返す。
package form

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/churchadmin/internal/model"
)

// 検証エラーメッセージ
const (
	MsgRequired        = "Campo obrigatório"
	MsgInvalidEmail    = "Email inválido"
	MsgPasswordsDiffer = "As senhas não coincidem"
	MsgInvalidDatetime = "Data e hora inválidas"
	MsgInvalidRole     = "Papel inválido"
	MsgInvalidValue    = "Valor inválido"
)

// LoginForm はログインフォーム。
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterForm はアカウント登録フォーム。
type RegisterForm struct {
	Name            string `json:"name" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,email"`
	Username        string `json:"username" validate:"required,min=3"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	ChurchID        string `json:"churchId" validate:"required"`
}

// ToRegisterData は確認用パスワードを除いた登録データに変換する。
func (f RegisterForm) ToRegisterData() model.RegisterData {
	return model.RegisterData{
		Name:     f.Name,
		Email:    f.Email,
		Username: f.Username,
		Password: f.Password,
		ChurchID: f.ChurchID,
	}
}

// EventForm はイベント作成・編集フォーム。日時は datetime-local 形式。
type EventForm struct {
	ChurchID      string `json:"churchId" validate:"required"`
	Name          string `json:"name" validate:"required,min=3"`
	Description   string `json:"description" validate:"required,min=10"`
	StartDatetime string `json:"startDatetime" validate:"required,datetimelocal"`
	EndDatetime   string `json:"endDatetime" validate:"required,datetimelocal"`
	Location      string `json:"location" validate:"required"`
	CreatedBy     string `json:"createdBy" validate:"required"`
}

// ParticipantRow は参加者追加フォームの1行。
type ParticipantRow struct {
	MemberID string                `json:"memberId" validate:"required"`
	Role     model.ParticipantRole `json:"role" validate:"required,participantrole"`
}

// ParticipantsForm は参加者追加フォーム。1行以上が必要。
type ParticipantsForm struct {
	Participants []ParticipantRow `json:"participants" validate:"required,min=1,dive"`
}

// Normalize は役割未指定の行をPARTICIPANTで補完する。
func (f *ParticipantsForm) Normalize() {
	for i := range f.Participants {
		if f.Participants[i].Role == "" {
			f.Participants[i].Role = model.RoleParticipant
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名にJSONタグ名を使う
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("datetimelocal", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDatetimeLocal(fl.Field().String(), nil)
		return err == nil
	})
	_ = v.RegisterValidation("participantrole", func(fl validator.FieldLevel) bool {
		return model.ParticipantRole(fl.Field().String()).Valid()
	})

	return v
}

// Validate はフォームを検証する。
// 検証エラーがある場合はフィールドごとのメッセージを持つ *model.APIError を返す。
func Validate(ctx context.Context, f any) error {
	err := validate.StructCtx(ctx, f)
	if err == nil {
		return nil
	}

	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate form: %w", err)
	}

	fields := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		key := fieldKey(fe.Namespace())
		if _, exists := fields[key]; exists {
			continue
		}
		fields[key] = message(fe)
	}
	return model.NewValidationError(fields)
}

// fieldKey は "LoginForm.email" のような名前空間から先頭の構造体名を取り除く。
func fieldKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "email":
		return MsgInvalidEmail
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Adicione pelo menos %s item", fe.Param())
		}
		return fmt.Sprintf("Mínimo de %s caracteres", fe.Param())
	case "eqfield":
		return MsgPasswordsDiffer
	case "datetimelocal":
		return MsgInvalidDatetime
	case "participantrole":
		return MsgInvalidRole
	default:
		return MsgInvalidValue
	}
}
