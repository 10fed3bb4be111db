package backend

import (
	"net/http"

	"github.com/hitoshi/churchadmin/internal/model"
)

// Resource はバックエンド呼び出しの対象リソース。
// エラーメッセージの文言はリソースごとに異なる。
type Resource string

const (
	ResourceLogin        Resource = "login"
	ResourceRegister     Resource = "register"
	ResourceChurches     Resource = "churches"
	ResourceUserEvents   Resource = "user_events"
	ResourceChurchEvents Resource = "church_events"
	ResourceEvent        Resource = "event"
	ResourceEventCreate  Resource = "event_create"
	ResourceEventUpdate  Resource = "event_update"
	ResourceEventDelete  Resource = "event_delete"
	ResourceParticipants Resource = "participants"
	ResourceMembers      Resource = "members"
	ResourceMember       Resource = "member"
)

// 共通メッセージ
const (
	MsgInvalidInput     = "Dados inválidos. Verifique os campos."
	MsgUnauthorized     = "Não autorizado. Faça login novamente."
	MsgForbidden        = "Acesso negado."
	MsgConflict         = "Conflito: o registro já existe."
	MsgServerError      = "Erro interno do servidor. Tente novamente mais tarde."
	MsgConnectivity     = "Não foi possível conectar ao servidor."
	MsgInvalidResponse  = "Resposta inválida do servidor."
	MsgLoginFailed      = "Email ou senha incorretos"
	MsgServerNotFound   = "Servidor não encontrado"
	MsgDuplicateAccount = "Email ou username já cadastrado."
	MsgDuplicateMember  = "Um ou mais participantes já estão cadastrados neste evento."
)

// resourceMessages はリソース固有の文言。空の項目は共通メッセージを使う。
type resourceMessages struct {
	category     string
	unauthorized string
	notFound     string
	conflict     string
	fallback     string
}

// messages はリソースごとの文言を返す。全てのResourceに定義がある。
func (r Resource) messages() resourceMessages {
	switch r {
	case ResourceLogin:
		return resourceMessages{
			category:     "auth",
			unauthorized: MsgLoginFailed,
			notFound:     MsgServerNotFound,
			fallback:     "Erro ao fazer login",
		}
	case ResourceRegister:
		return resourceMessages{
			category: "auth",
			notFound: MsgServerNotFound,
			conflict: MsgDuplicateAccount,
			fallback: "Erro ao realizar cadastro",
		}
	case ResourceChurches:
		return resourceMessages{
			category: "church",
			notFound: "Nenhuma igreja encontrada",
			fallback: "Erro ao carregar igrejas.",
		}
	case ResourceUserEvents:
		return resourceMessages{
			category: "event",
			notFound: "Nenhum evento encontrado para este usuário",
			fallback: "Erro ao carregar eventos. Tente novamente.",
		}
	case ResourceChurchEvents:
		return resourceMessages{
			category: "event",
			notFound: "Nenhum evento encontrado para esta igreja",
			fallback: "Erro ao carregar eventos. Tente novamente.",
		}
	case ResourceEvent:
		return resourceMessages{
			category: "event",
			notFound: "Evento não encontrado",
			fallback: "Erro ao carregar detalhes do evento",
		}
	case ResourceEventCreate:
		return resourceMessages{
			category: "event",
			notFound: "Igreja não encontrada",
			conflict: "Já existe um evento com estes dados.",
			fallback: "Erro ao criar evento.",
		}
	case ResourceEventUpdate:
		return resourceMessages{
			category: "event",
			notFound: "Evento não encontrado",
			fallback: "Erro ao atualizar evento.",
		}
	case ResourceEventDelete:
		return resourceMessages{
			category: "event",
			notFound: "Evento não encontrado",
			fallback: "Erro ao excluir evento.",
		}
	case ResourceParticipants:
		return resourceMessages{
			category: "event",
			notFound: "Evento ou membro não encontrado.",
			conflict: MsgDuplicateMember,
			fallback: "Erro ao adicionar participantes.",
		}
	case ResourceMembers:
		return resourceMessages{
			category: "member",
			notFound: "Igreja não encontrada",
			fallback: "Erro ao carregar membros da igreja",
		}
	case ResourceMember:
		return resourceMessages{
			category: "member",
			notFound: "Membro não encontrado",
			fallback: "Erro ao carregar membro",
		}
	default:
		return resourceMessages{
			category: "system",
			notFound: "Recurso não encontrado",
			fallback: "Erro ao processar requisição.",
		}
	}
}

// IsAuthRoute は /auth/* 系のリソースかどうかを返す。
// 認証系リソースの401/403はセッション破棄を伴わない。
func (r Resource) IsAuthRoute() bool {
	return r == ResourceLogin || r == ResourceRegister
}

// Classify はバックエンドのHTTPステータスとサーバーメッセージから
// 画面に表示できる分類済みエラーを生成する。status 0 は接続失敗を表す。
func Classify(resource Resource, status int, serverMessage string) *model.APIError {
	msgs := resource.messages()
	e := &model.APIError{
		Category: msgs.category,
		Status:   status,
	}

	switch status {
	case http.StatusBadRequest:
		e.Code, e.Kind, e.Category = model.ErrCodeInvalidInput, model.KindValidation, "validation"
		e.Message = MsgInvalidInput
		e.Action = "Corrija os dados informados e tente novamente."
	case http.StatusUnauthorized:
		e.Code, e.Kind = model.ErrCodeUnauthorized, model.KindAuth
		e.Message = firstNonEmpty(msgs.unauthorized, MsgUnauthorized)
		e.Action = "Faça login para continuar."
	case http.StatusForbidden:
		e.Code, e.Kind = model.ErrCodeForbidden, model.KindAuth
		e.Message = MsgForbidden
		e.Action = "Verifique suas permissões ou faça login com outra conta."
	case http.StatusNotFound:
		e.Code, e.Kind = model.ErrCodeNotFound, model.KindNotFound
		e.Message = msgs.notFound
		e.Action = "Verifique os dados e tente novamente."
	case http.StatusConflict:
		e.Code, e.Kind = model.ErrCodeConflict, model.KindConflict
		e.Message = firstNonEmpty(msgs.conflict, MsgConflict)
		e.Action = "Revise os dados informados."
	case http.StatusInternalServerError:
		e.Code, e.Kind, e.Category = model.ErrCodeServerError, model.KindServer, "system"
		e.Message = MsgServerError
		e.Action = "Aguarde alguns instantes e tente novamente."
	case 0:
		e.Code, e.Kind, e.Category = model.ErrCodeConnectionFailed, model.KindConnectivity, "system"
		e.Message = MsgConnectivity
		e.Action = "Verifique sua conexão e tente novamente."
	default:
		e.Code, e.Kind = model.ErrCodeUnknown, model.KindUnknown
		e.Message = firstNonEmpty(serverMessage, msgs.fallback)
		e.Action = "Tente novamente mais tarde."
	}

	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
