package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/churchadmin/internal/audit"
	"github.com/hitoshi/churchadmin/internal/event"
	"github.com/hitoshi/churchadmin/internal/form"
	"github.com/hitoshi/churchadmin/internal/loading"
	"github.com/hitoshi/churchadmin/internal/model"
)

// 管理画面の成功メッセージ
const (
	MsgEventCreated = "Evento criado com sucesso!"
	MsgEventUpdated = "Evento atualizado com sucesso!"
	MsgEventDeleted = "Evento excluído com sucesso!"
)

// AdminHandler は管理者向けのイベント・会員管理のHTTPハンドラー。
type AdminHandler struct {
	*Deps
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(deps *Deps) *AdminHandler {
	return &AdminHandler{Deps: deps}
}

type eventMutationResponse struct {
	Message string                `json:"message"`
	Event   *model.CanonicalEvent `json:"event,omitempty"`
}

type participantsResponse struct {
	Count        int                 `json:"count"`
	Message      string              `json:"message"`
	Participants []model.Participant `json:"participants"`
}

// ListEvents は管理者の教会のイベント一覧を返す。
// GET /app/admin/events
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadEvents)
	defer release()

	events, err := sc.api.ListChurchEvents(ctx, user.ChurchID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newEventList(h.Normalizer.ToDisplayBatch(events)))
}

// NewEventForm は新規作成フォームの初期値を返す。
// GET /app/admin/events/new
func (h *AdminHandler) NewEventForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"form": event.CreateSeed(userFrom(r.Context())),
	})
}

// GetEvent はイベントの詳細を返す。
// GET /app/admin/events/{id}
func (h *AdminHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadEvent)
	defer release()

	e, err := sc.api.GetEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, eventDetailsResponse{
		Event:        *e,
		Display:      newEventView(h.Normalizer.ToDisplay(*e)),
		Participants: newParticipantViews(e.Participants),
	})
}

// EditEventForm は編集フォームの初期値を返す。
// GET /app/admin/events/{id}/edit
func (h *AdminHandler) EditEventForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadEvent)
	defer release()

	e, err := sc.api.GetEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.Normalizer.EditSeed(*e, userFrom(ctx)))
}

// CreateEvent はイベントを作成する。
// POST /app/admin/events
func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)

	req, ok := h.decodeEventForm(w, r)
	if !ok {
		return
	}

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpSaveEvent)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpSaveEvent))
		return
	}
	defer release()

	created, err := sc.api.CreateEvent(ctx, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.Auditor.Record(ctx, h.entry(audit.ActionEventCreated, created.ID, user, req.ChurchID))
	writeJSON(w, http.StatusCreated, eventMutationResponse{Message: MsgEventCreated, Event: created})
}

// UpdateEvent はイベントを更新する。
// PUT /app/admin/events/{id}
func (h *AdminHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)
	id := chi.URLParam(r, "id")

	req, ok := h.decodeEventForm(w, r)
	if !ok {
		return
	}

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpSaveEvent)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpSaveEvent))
		return
	}
	defer release()

	updated, err := sc.api.UpdateEvent(ctx, id, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.Auditor.Record(ctx, h.entry(audit.ActionEventUpdated, id, user, req.ChurchID))
	writeJSON(w, http.StatusOK, eventMutationResponse{Message: MsgEventUpdated, Event: updated})
}

// DeleteEvent はイベントを削除する。
// DELETE /app/admin/events/{id}
func (h *AdminHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)
	id := chi.URLParam(r, "id")

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpDeleteEvent)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpDeleteEvent))
		return
	}
	defer release()

	if err := sc.api.DeleteEvent(ctx, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.Auditor.Record(ctx, h.entry(audit.ActionEventDeleted, id, user, user.ChurchID))
	writeJSON(w, http.StatusOK, eventMutationResponse{Message: MsgEventDeleted})
}

// AddParticipants はイベントに参加者をまとめて追加する。
// 役割が未指定の行はPARTICIPANTとして扱う。
// POST /app/admin/events/{id}/participants
func (h *AdminHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)
	id := chi.URLParam(r, "id")

	var f form.ParticipantsForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	f.Normalize()
	if err := form.Validate(ctx, f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpAddParticipants)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpAddParticipants))
		return
	}
	defer release()

	result, err := sc.api.AddParticipants(ctx, id, h.Normalizer.ParticipantRequests(f))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	e := h.entry(audit.ActionParticipantsAdded, id, user, user.ChurchID)
	e.Count = result.Count
	h.Auditor.Record(ctx, e)

	participants := result.Participants
	if participants == nil {
		participants = []model.Participant{}
	}
	writeJSON(w, http.StatusOK, participantsResponse{
		Count:        result.Count,
		Message:      event.AddedParticipantsMessage(result.Count),
		Participants: participants,
	})
}

// ListMembers は管理者の教会の会員一覧と選択可能な役割を返す。
// GET /app/admin/members
func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadMembers)
	defer release()

	members, err := sc.api.ListChurchMembers(ctx, user.ChurchID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"roles":   roleOptions(),
	})
}

// GetMember は会員を1件返す。
// GET /app/admin/members/{id}
func (h *AdminHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadMembers)
	defer release()

	m, err := sc.api.GetMember(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// decodeEventForm はイベントフォームをデコード・検証し、バックエンドへのリクエストに変換する。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func (h *AdminHandler) decodeEventForm(w http.ResponseWriter, r *http.Request) (model.EventRequest, bool) {
	var f form.EventForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.handleServiceError(w, r, err)
		return model.EventRequest{}, false
	}
	if err := form.Validate(r.Context(), f); err != nil {
		h.handleServiceError(w, r, err)
		return model.EventRequest{}, false
	}

	req, err := h.Normalizer.ToRequest(f)
	if err != nil {
		var fe *event.FieldError
		if !errors.As(err, &fe) {
			h.handleServiceError(w, r, err)
			return model.EventRequest{}, false
		}
		h.handleServiceError(w, r, model.NewValidationError(map[string]string{
			fe.Field: form.MsgInvalidDatetime,
		}))
		return model.EventRequest{}, false
	}
	return req, true
}

func (h *AdminHandler) entry(action, eventID string, user *model.UserProfile, churchID string) audit.Entry {
	return audit.Entry{
		Action:   action,
		EventID:  eventID,
		ActorID:  user.ID,
		Actor:    user.Username,
		ChurchID: churchID,
	}
}
