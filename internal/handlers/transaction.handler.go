package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/internal/services"
	xhttp "github.com/campuspoints/points-engine/pkg/http"
	"github.com/fasthttp/router"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	Apply(ctx context.Context, actorUtorid string, req model.ApplyRequest) (*model.Transaction, error)
	ProcessRedemption(ctx context.Context, actorUtorid string, transactionID int64) (*model.Transaction, error)
	ReprocessTransaction(ctx context.Context, actorUtorid string, transactionID int64) (*model.Transaction, error)
	FlagTransaction(ctx context.Context, actorUtorid string, transactionID int64, suspicious bool) (*model.Transaction, error)
	History(ctx context.Context, actorUtorid string, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type TransactionHandler struct {
	svc LedgerService
}

func RegisterTransactionRoutes(e *router.Group, h *TransactionHandler) {
	e.POST("/transactions", h.CreateTransaction)
	e.GET("/transactions", h.ListTransactions)
	e.PATCH("/transactions/{id}/processed", h.ProcessRedemption)
	e.PATCH("/transactions/{id}/suspicious", h.FlagTransaction)
	e.POST("/transactions/{id}/reprocess", h.ReprocessTransaction)
}

func NewTransactionHandler(ledgerService LedgerService) *TransactionHandler {
	return &TransactionHandler{
		svc: ledgerService,
	}
}

type createTransactionRequest struct {
	Type         string  `json:"type"`
	Utorid       string  `json:"utorid"`
	Receiver     string  `json:"receiver"`
	Spent        string  `json:"spent"`
	Amount       int64   `json:"amount"`
	PromotionIDs []int64 `json:"promotion_ids"`
	EventID      int64   `json:"event_id"`
	RelatedID    *int64  `json:"related_id"`
	Remark       string  `json:"remark"`
}

type processedRequest struct {
	Processed bool `json:"processed"`
}

type suspiciousRequest struct {
	Suspicious bool `json:"suspicious"`
}

type listTransactionsResponse struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *TransactionHandler) CreateTransaction(ctx *xhttp.RequestCtx) {
	var req createTransactionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	apply, err := req.toApplyRequest()
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	txn, err := h.svc.Apply(ctx, actor(ctx), apply)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, txn)
}

func (r createTransactionRequest) toApplyRequest() (model.ApplyRequest, error) {
	switch model.TransactionType(r.Type) {
	case model.TransactionPurchase:
		spent, err := decimal.NewFromString(r.Spent)
		if err != nil {
			return nil, err
		}
		return model.PurchaseRequest{
			ReceiverUtorid: r.Utorid,
			Spent:          spent,
			PromotionIDs:   r.PromotionIDs,
			Remark:         r.Remark,
		}, nil
	case model.TransactionRedemption:
		if r.Amount < 0 {
			return nil, errNegativeAmount
		}
		return model.RedemptionRequest{
			Utorid: r.Utorid,
			Amount: uint(r.Amount),
			Remark: r.Remark,
		}, nil
	case model.TransactionTransfer:
		if r.Amount < 0 {
			return nil, errNegativeAmount
		}
		return model.TransferRequest{
			IssuerUtorid:   r.Utorid,
			ReceiverUtorid: r.Receiver,
			Amount:         uint(r.Amount),
			Remark:         r.Remark,
		}, nil
	case model.TransactionEvent:
		if r.Amount < 0 {
			return nil, errNegativeAmount
		}
		return model.EventAwardRequest{
			EventID:     r.EventID,
			GuestUtorid: r.Utorid,
			Amount:      uint(r.Amount),
			Remark:      r.Remark,
		}, nil
	case model.TransactionAdjustment:
		return model.AdjustmentRequest{
			Utorid:    r.Utorid,
			Amount:    r.Amount,
			RelatedID: r.RelatedID,
			Remark:    r.Remark,
		}, nil
	}
	return nil, errUnknownTransactionType(r.Type)
}

func (h *TransactionHandler) ProcessRedemption(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid transaction id")
		return
	}
	var req processedRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if !req.Processed {
		writeError(ctx, 400, "processed must be true")
		return
	}

	txn, err := h.svc.ProcessRedemption(ctx, actor(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, txn)
}

func (h *TransactionHandler) FlagTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid transaction id")
		return
	}
	var req suspiciousRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.FlagTransaction(ctx, actor(ctx), id, req.Suspicious)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, txn)
}

func (h *TransactionHandler) ReprocessTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid transaction id")
		return
	}

	txn, err := h.svc.ReprocessTransaction(ctx, actor(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, txn)
}

func (h *TransactionHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	var f model.TransactionFilter

	if v := query(ctx, "user_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.UserID = &id
		}
	}
	if v := query(ctx, "type"); v != "" {
		t := model.TransactionType(v)
		f.Type = &t
	}
	if v := query(ctx, "promotion_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.PromotionID = &id
		}
	}
	if v := query(ctx, "event_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.EventID = &id
		}
	}
	if v := query(ctx, "suspicious"); v != "" {
		b := v == "true"
		f.Suspicious = &b
	}
	if v := query(ctx, "processed"); v != "" {
		b := v == "true"
		f.Processed = &b
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.History(ctx, actor(ctx), f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, listTransactionsResponse{Items: items, Total: total})
}

/* -------------------------------- Helpers ----------------------------------- */

type unknownTypeError string

func errUnknownTransactionType(t string) error { return unknownTypeError(t) }

func (e unknownTypeError) Error() string { return "unknown transaction type: " + string(e) }

// Adjustments carry a signed amount; every other kind is unsigned on the
// wire, so a negative value is rejected before the uint conversion.
var errNegativeAmount = errors.New("amount must not be negative")

// actor is the utorid of the authenticated caller, resolved upstream by
// the auth layer and forwarded in a trusted header.
func actor(ctx *xhttp.RequestCtx) string {
	return string(ctx.Request.Header.Peek("X-Actor-Utorid"))
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps the ledger error taxonomy onto HTTP statuses.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	kind, ok := services.KindOf(err)
	if !ok {
		writeError(ctx, 500, "internal error")
		return
	}
	switch kind {
	case services.KindValidation:
		writeError(ctx, 400, err.Error())
	case services.KindPrecondition:
		writeError(ctx, 422, err.Error())
	case services.KindNotFound:
		writeError(ctx, 404, err.Error())
	case services.KindConflict:
		writeError(ctx, 409, err.Error())
	default:
		writeError(ctx, 500, err.Error())
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
