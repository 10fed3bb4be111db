package handler

import (
	"github.com/hitoshi/churchadmin/internal/event"
	"github.com/hitoshi/churchadmin/internal/model"
)

// eventView は表示用イベントにステータスの表示名とCSSクラスを加えたもの。
type eventView struct {
	model.DisplayEvent
	StatusLabel string `json:"statusLabel"`
	StatusClass string `json:"statusClass"`
}

type eventListResponse struct {
	Events []eventView       `json:"events"`
	Counts event.StatusCount `json:"counts"`
}

type participantView struct {
	model.Participant
	RoleLabel string `json:"roleLabel"`
}

type eventDetailsResponse struct {
	Event        model.CanonicalEvent `json:"event"`
	Display      eventView            `json:"display"`
	Participants []participantView    `json:"participants"`
}

type roleOption struct {
	Value model.ParticipantRole `json:"value"`
	Label string                `json:"label"`
}

func newEventView(d model.DisplayEvent) eventView {
	return eventView{
		DisplayEvent: d,
		StatusLabel:  d.Status.Label(),
		StatusClass:  d.Status.CSSClass(),
	}
}

func newEventList(ds []model.DisplayEvent) eventListResponse {
	views := make([]eventView, 0, len(ds))
	for _, d := range ds {
		views = append(views, newEventView(d))
	}
	return eventListResponse{Events: views, Counts: event.CountByStatus(ds)}
}

func newParticipantViews(ps []model.Participant) []participantView {
	out := make([]participantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, participantView{Participant: p, RoleLabel: p.Role.Label()})
	}
	return out
}

func roleOptions() []roleOption {
	out := make([]roleOption, 0, len(model.ParticipantRoles))
	for _, r := range model.ParticipantRoles {
		out = append(out, roleOption{Value: r, Label: r.Label()})
	}
	return out
}
