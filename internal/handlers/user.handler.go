package handlers

import (
	"context"

	xhttp "github.com/campuspoints/points-engine/pkg/http"
	"github.com/fasthttp/router"
)

type BalanceService interface {
	Balance(ctx context.Context, utorid string) (uint, error)
	FlagUser(ctx context.Context, actorUtorid, utorid string, suspicious bool) error
}

type UserHandler struct {
	svc BalanceService
}

func RegisterUserRoutes(e *router.Group, h *UserHandler) {
	e.GET("/users/{utorid}/balance", h.GetBalance)
	e.PATCH("/users/{utorid}/suspicious", h.FlagUser)
}

func NewUserHandler(balanceService BalanceService) *UserHandler {
	return &UserHandler{
		svc: balanceService,
	}
}

type balanceResponse struct {
	Utorid  string `json:"utorid"`
	Balance uint   `json:"balance"`
}

func (h *UserHandler) GetBalance(ctx *xhttp.RequestCtx) {
	utorid, _ := ctx.UserValue("utorid").(string)

	balance, err := h.svc.Balance(ctx, utorid)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, balanceResponse{Utorid: utorid, Balance: balance})
}

func (h *UserHandler) FlagUser(ctx *xhttp.RequestCtx) {
	utorid, _ := ctx.UserValue("utorid").(string)

	var req suspiciousRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	if err := h.svc.FlagUser(ctx, actor(ctx), utorid, req.Suspicious); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]any{"utorid": utorid, "suspicious": req.Suspicious})
}
