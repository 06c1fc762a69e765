package handlers

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zakkycrypt01/voile/libs/auth"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/lppool"
	"github.com/zakkycrypt01/voile/services/lppool/internal/service"
)

// amountDecimals is the base-unit scale shared by the locked asset and USDC.
const amountDecimals = 6

type Handler struct {
	Svc    *service.Service
	Logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Logger: logger}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type depositRequest struct {
	Amount string `json:"amount"`
}

type poolResponse struct {
	Balance     string `json:"balance"`
	TotalEarned string `json:"total_earned"`
}

type createOfferBody struct {
	MaxAmount    string `json:"max_amount"`
	MinAmount    string `json:"min_amount"`
	CustomAPRBps uint64 `json:"custom_apr_bps"`
}

type createOfferResponse struct {
	OfferID    uint64 `json:"offer_id"`
	Commitment string `json:"commitment"`
	Secret     string `json:"secret"`
}

type offerResponse struct {
	OfferID      uint64 `json:"offer_id"`
	MaxAmount    string `json:"max_amount"`
	MinAmount    string `json:"min_amount"`
	CustomAPRBps uint64 `json:"custom_apr_bps"`
	Active       bool   `json:"active"`
	Commitment   string `json:"commitment"`
}

type dealResponse struct {
	DealID         string `json:"deal_id"`
	OfferID        uint64 `json:"offer_id"`
	Advance        string `json:"advance"`
	Settled        bool   `json:"settled"`
	StakedReceived string `json:"staked_received,omitempty"`
	LPFee          string `json:"lp_fee,omitempty"`
	Interest       string `json:"interest,omitempty"`
	NoteHash       string `json:"note_hash,omitempty"`
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	g := r.Group("/", auth.Middleware(jwtSecret))
	g.GET("/pool", h.Pool)
	g.POST("/pool/deposits", h.Deposit)
	g.POST("/pool/withdrawals", h.Withdraw)
	g.POST("/offers", h.CreateOffer)
	g.GET("/offers/:id", h.GetOffer)
	g.DELETE("/offers/:id", h.CancelOffer)
	g.GET("/deals/:id", h.GetDeal)
}

func (h *Handler) Pool(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context())
	if err != nil {
		h.internal(c, "pool stats failed", err)
		return
	}
	c.JSON(http.StatusOK, poolResponse{
		Balance:     formatAmount(stats.Balance),
		TotalEarned: formatAmount(stats.TotalEarned),
	})
}

func (h *Handler) Deposit(c *gin.Context) {
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
	if err := h.Svc.Deposit(c.Request.Context(), amount); err != nil {
		h.writeError(c, err, "deposit failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Withdraw(c *gin.Context) {
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
	if err := h.Svc.Withdraw(c.Request.Context(), amount); err != nil {
		h.writeError(c, err, "withdrawal failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateOffer(c *gin.Context) {
	lpID, ok := accountFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	var body createOfferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid body")
		return
	}
	maxAmount, err := parseAmount(body.MaxAmount)
	if err != nil {
		badRequest(c, "max_amount: "+err.Error())
		return
	}
	minAmount, err := parseAmount(body.MinAmount)
	if err != nil {
		badRequest(c, "min_amount: "+err.Error())
		return
	}

	receipt, err := h.Svc.CreateOffer(c.Request.Context(), lpID, maxAmount, minAmount, body.CustomAPRBps)
	if err != nil {
		h.writeError(c, err, "create offer failed")
		return
	}
	c.JSON(http.StatusCreated, createOfferResponse{
		OfferID:    receipt.OfferID,
		Commitment: receipt.Commitment.String(),
		Secret:     receipt.Secret.String(),
	})
}

func (h *Handler) GetOffer(c *gin.Context) {
	offerID, err := parseOfferID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid offer id")
		return
	}
	offer, err := h.Svc.GetOffer(c.Request.Context(), offerID)
	if err != nil {
		h.writeError(c, err, "get offer failed")
		return
	}
	c.JSON(http.StatusOK, offerResponse{
		OfferID:      offer.ID,
		MaxAmount:    formatAmount(offer.MaxAmount),
		MinAmount:    formatAmount(offer.MinAmount),
		CustomAPRBps: offer.CustomAPRBps,
		Active:       offer.Active,
		Commitment:   offer.Commitment.String(),
	})
}

func (h *Handler) CancelOffer(c *gin.Context) {
	offerID, err := parseOfferID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid offer id")
		return
	}
	if err := h.Svc.CancelOffer(c.Request.Context(), offerID); err != nil {
		h.writeError(c, err, "cancel offer failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetDeal(c *gin.Context) {
	dealID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		badRequest(c, "invalid deal id")
		return
	}
	deal, err := h.Svc.GetDeal(c.Request.Context(), dealID)
	if err != nil {
		h.writeError(c, err, "get deal failed")
		return
	}

	resp := dealResponse{
		DealID:  deal.ID.String(),
		OfferID: deal.OfferID,
		Advance: formatAmount(deal.Advance),
		Settled: deal.Settled,
	}
	if deal.Settled {
		resp.StakedReceived = formatAmount(deal.StakedReceived)
		resp.LPFee = formatAmount(deal.LPFee)
		resp.Interest = formatAmount(deal.Interest)
		resp.NoteHash = deal.SettlementNoteHash.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, lppool.ErrInvalidAmount), errors.Is(err, lppool.ErrInvalidBounds):
		badRequest(c, err.Error())
	case errors.Is(err, lppool.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "INSUFFICIENT_BALANCE", Message: "insufficient pool balance"})
	case errors.Is(err, faucet.ErrMintTooLarge):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "MINT_TOO_LARGE", Message: "deposit exceeds faucet cap"})
	case errors.Is(err, lppool.ErrOfferNotFound), errors.Is(err, lppool.ErrDealNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "not found"})
	case errors.Is(err, lppool.ErrOfferInactive):
		c.JSON(http.StatusConflict, errorResponse{Code: "OFFER_INACTIVE", Message: "offer is not active"})
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

func parseOfferID(raw string) (uint64, error) {
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
	if !scaled.BigInt().IsUint64() {
		return 0, errors.New("amount out of range")
	}
	return scaled.BigInt().Uint64(), nil
}

func formatAmount(raw uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -amountDecimals).String()
}
