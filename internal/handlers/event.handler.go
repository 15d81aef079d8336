package handlers

import (
	"context"

	"github.com/campuspoints/points-engine/internal/model"
	xhttp "github.com/campuspoints/points-engine/pkg/http"
	"github.com/fasthttp/router"
)

type EventService interface {
	Distribute(ctx context.Context, actorUtorid string, eventID int64, target model.AwardTarget, amountPerGuest uint, remark string) ([]*model.Transaction, error)
}

type EventHandler struct {
	svc EventService
}

func RegisterEventRoutes(e *router.Group, h *EventHandler) {
	e.POST("/events/{id}/transactions", h.Distribute)
}

func NewEventHandler(eventService EventService) *EventHandler {
	return &EventHandler{
		svc: eventService,
	}
}

type distributeRequest struct {
	// Utorid targets a single guest; empty targets every RSVP'd guest.
	Utorid string `json:"utorid"`
	Amount uint   `json:"amount"`
	Remark string `json:"remark"`
}

type distributeResponse struct {
	Items []*model.Transaction `json:"items"`
}

func (h *EventHandler) Distribute(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid event id")
		return
	}
	var req distributeRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	target := model.AllGuests()
	if req.Utorid != "" {
		target = model.Guest(req.Utorid)
	}

	txns, err := h.svc.Distribute(ctx, actor(ctx), id, target, req.Amount, req.Remark)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, distributeResponse{Items: txns})
}
