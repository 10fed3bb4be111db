package handler

import (
	"fmt"
	"net/http"

	"github.com/hitoshi/churchadmin/internal/loading"
)

// DashboardHandler はログイン済みユーザー向けのHTTPハンドラー。
type DashboardHandler struct {
	*Deps
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(deps *Deps) *DashboardHandler {
	return &DashboardHandler{Deps: deps}
}

// ListEvents はユーザーのイベント一覧と確定・未確定の件数を返す。
// GET /app/dashboard/events
func (h *DashboardHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadEvents)
	defer release()

	events, err := sc.api.ListUserEvents(ctx, user.ID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newEventList(h.Normalizer.ToDisplayBatch(events)))
}

// ExportCalendar はユーザーのイベントをiCalendar形式で返す。
// GET /app/dashboard/events.ics
func (h *DashboardHandler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)
	user := userFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadEvents)
	defer release()

	events, err := sc.api.ListUserEvents(ctx, user.ID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	body := h.Exporter.Export(fmt.Sprintf("Eventos - %s", user.Name), events)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="eventos.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
