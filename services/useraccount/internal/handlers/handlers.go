package handlers

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zakkycrypt01/voile/libs/auth"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/useraccount"
	"github.com/zakkycrypt01/voile/services/useraccount/internal/rate"
	"github.com/zakkycrypt01/voile/services/useraccount/internal/service"
)

// amountDecimals is the base-unit scale shared by the locked asset and USDC.
const amountDecimals = 6

type Handler struct {
	Svc     *service.Service
	Limiter rate.Limiter
	Logger  *slog.Logger
}

func New(svc *service.Service, limiter rate.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Limiter: limiter, Logger: logger}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type depositRequest struct {
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type createRequestBody struct {
	Amount string `json:"amount"`
}

type createRequestResponse struct {
	RequestID   uint64 `json:"request_id"`
	Commitment  string `json:"commitment"`
	CooldownEnd uint64 `json:"cooldown_end"`
	Secret      string `json:"secret"`
}

type requestResponse struct {
	RequestID          uint64 `json:"request_id"`
	Amount             string `json:"amount"`
	CooldownEnd        uint64 `json:"cooldown_end"`
	Matched            bool   `json:"matched"`
	Settled            bool   `json:"settled"`
	LPCommitment       string `json:"lp_commitment,omitempty"`
	SettlementNoteHash string `json:"settlement_note_hash,omitempty"`
}

type settleRequestBody struct {
	Secret string `json:"secret"`
}

type settleResponse struct {
	DealID      string `json:"deal_id"`
	RequestID   uint64 `json:"request_id"`
	Amount      string `json:"amount"`
	CooldownEnd uint64 `json:"cooldown_end"`
	NoteHash    string `json:"note_hash"`
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	g := r.Group("/", auth.Middleware(jwtSecret))
	g.GET("/balance", h.Balance)
	g.POST("/deposits", h.rateLimited, h.Deposit)
	g.POST("/unlock-requests", h.rateLimited, h.CreateUnlockRequest)
	g.GET("/unlock-requests/:id", h.GetRequest)
	g.DELETE("/unlock-requests/:id", h.CancelRequest)
	g.POST("/unlock-requests/:id/settlement", h.rateLimited, h.Settle)
}

func (h *Handler) rateLimited(c *gin.Context) {
	if h.Limiter == nil {
		return
	}
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}
	allowed, retryAfter, err := h.Limiter.Allow(c.Request.Context(), accountID, time.Now())
	if err != nil {
		h.Logger.Error("rate limiter failed", "error", err)
		return
	}
	if !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Message: "too many requests"})
	}
}

func (h *Handler) Balance(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	bal, err := h.Svc.Balance(c.Request.Context(), accountID)
	if err != nil {
		h.internal(c, "balance lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Balance: formatAmount(bal)})
}

func (h *Handler) Deposit(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	var body depositRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid body")
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Svc.Deposit(c.Request.Context(), accountID, amount); err != nil {
		h.writeError(c, err, "deposit failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateUnlockRequest(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid body")
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	receipt, err := h.Svc.CreateUnlockRequest(c.Request.Context(), accountID, amount)
	if err != nil {
		h.writeError(c, err, "create unlock request failed")
		return
	}
	c.JSON(http.StatusCreated, createRequestResponse{
		RequestID:   receipt.RequestID,
		Commitment:  receipt.Commitment.String(),
		CooldownEnd: receipt.CooldownEnd,
		Secret:      receipt.Secret.String(),
	})
}

func (h *Handler) GetRequest(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	requestID, err := parseRequestID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid request id")
		return
	}

	req, err := h.Svc.GetRequest(c.Request.Context(), accountID, requestID)
	if err != nil {
		h.writeError(c, err, "get request failed")
		return
	}

	resp := requestResponse{
		RequestID:   req.ID,
		Amount:      formatAmount(req.Amount),
		CooldownEnd: req.CooldownEnd,
		Matched:     req.Matched(),
		Settled:     req.Settled,
	}
	if req.Matched() {
		resp.LPCommitment = req.LPCommitment.String()
	}
	if !req.SettlementNoteHash.IsZero() {
		resp.SettlementNoteHash = req.SettlementNoteHash.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelRequest(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	requestID, err := parseRequestID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid request id")
		return
	}
	if err := h.Svc.CancelRequest(c.Request.Context(), accountID, requestID); err != nil {
		h.writeError(c, err, "cancel request failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Settle(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	requestID, err := parseRequestID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid request id")
		return
	}
	var body settleRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid body")
		return
	}
	secret, err := commit.ParseWord(strings.TrimSpace(body.Secret))
	if err != nil {
		badRequest(c, "invalid secret")
		return
	}

	receipt, err := h.Svc.AuthorizeSettlement(c.Request.Context(), accountID, requestID, secret)
	if err != nil {
		h.writeError(c, err, "settlement failed")
		return
	}
	c.JSON(http.StatusOK, settleResponse{
		DealID:      receipt.DealID.String(),
		RequestID:   receipt.RequestID,
		Amount:      formatAmount(receipt.Amount),
		CooldownEnd: receipt.CooldownEnd,
		NoteHash:    receipt.NoteHash.String(),
	})
}

func (h *Handler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, useraccount.ErrInvalidAmount):
		badRequest(c, "amount must be positive")
	case errors.Is(err, useraccount.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "INSUFFICIENT_BALANCE", Message: "insufficient locked balance"})
	case errors.Is(err, faucet.ErrMintTooLarge):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "MINT_TOO_LARGE", Message: "deposit exceeds faucet cap"})
	case errors.Is(err, useraccount.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "unlock request not found"})
	case errors.Is(err, useraccount.ErrAlreadyMatched):
		c.JSON(http.StatusConflict, errorResponse{Code: "ALREADY_MATCHED", Message: "request already matched"})
	case errors.Is(err, useraccount.ErrNotMatched):
		c.JSON(http.StatusConflict, errorResponse{Code: "NOT_MATCHED", Message: "request not matched"})
	case errors.Is(err, useraccount.ErrAlreadySettled):
		c.JSON(http.StatusConflict, errorResponse{Code: "ALREADY_SETTLED", Message: "request already settled"})
	case errors.Is(err, useraccount.ErrCooldownActive):
		c.JSON(http.StatusConflict, errorResponse{Code: "COOLDOWN_ACTIVE", Message: "cooldown has not elapsed"})
	case errors.Is(err, useraccount.ErrCommitmentMismatch):
		c.JSON(http.StatusConflict, errorResponse{Code: "COMMITMENT_MISMATCH", Message: "secret does not open the commitment"})
	case errors.Is(err, service.ErrDealNotIndexed):
		c.JSON(http.StatusConflict, errorResponse{Code: "DEAL_PENDING", Message: "deal not confirmed yet, retry shortly"})
	default:
		h.internal(c, logMsg, err)
	}
}

func (h *Handler) internal(c *gin.Context, msg string, err error) {
	h.Logger.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: msg})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing account"})
}

func accountFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(auth.ContextAccountIDKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func parseRequestID(raw string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

// parseAmount converts a display-unit decimal string into raw base units.
func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, errors.New("amount must be decimal")
	}
	if d.Sign() <= 0 {
		return 0, errors.New("amount must be positive")
	}
	scaled := d.Shift(amountDecimals)
	if !scaled.IsInteger() {
		return 0, errors.New("amount has too many decimal places")
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, errors.New("amount too large")
	}
	return bi.Uint64(), nil
}

// formatAmount renders raw base units as a display-unit decimal string.
func formatAmount(raw uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -amountDecimals).String()
}
