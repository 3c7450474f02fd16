// Package httpserver exposes the auction engine over REST. Caller identity
// arrives in the X-Caller header, supplied by the external account layer; the
// server forwards it to the engine untouched and performs no authentication
// of its own.
package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/agrilot/sealedlot/auctionapi"
	"github.com/agrilot/sealedlot/core"
)

// CallerHeader names the header carrying the opaque caller identity token.
const CallerHeader = "X-Caller"

// Handler wires engine operations to HTTP routes.
type Handler struct {
	engine *core.Engine
	// now supplies the engine's injected time (seconds). Overridable in tests.
	now func() uint64
}

// NewHandler creates a Handler around an engine.
func NewHandler(engine *core.Engine) *Handler {
	return &Handler{
		engine: engine,
		now:    func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// RegisterRoutes registers all engine routes.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/lots", h.CreateLot)
	router.GET("/lots/:id", h.GetLot)
	router.POST("/lots/:id/commit", h.CommitBid)
	router.POST("/lots/:id/reveal", h.RevealBid)
	router.POST("/lots/:id/finalize", h.FinalizePlain)
	router.POST("/lots/:id/finalize-proof", h.FinalizeWithProof)
	router.POST("/lots/:id/payment", h.VerifyPayment)
	router.GET("/lots/:id/winner", h.GetWinner)
	router.GET("/lots/:id/paid", h.IsPaid)
	router.GET("/lots/:id/bidders", h.BidderCount)
	router.GET("/lots/:id/bidders/:index", h.BidderAt)
	router.GET("/lots/:id/events", h.EventsByLot)
	router.POST("/lots/:id/debug-reveal", h.DebugReveal)
	router.POST("/preview", h.PreviewHash)
}

func caller(c *gin.Context) core.Identity {
	return core.Identity(c.GetHeader(CallerHeader))
}

func lotID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: "invalid lot id"})
		return 0, false
	}
	return id, true
}

// statusFor maps engine error kinds onto HTTP statuses.
func statusFor(kind string) int {
	switch kind {
	case "unauthorized":
		return http.StatusForbidden
	case "lot_not_found":
		return http.StatusNotFound
	case "lot_exists", "already_finalized", "not_finalized",
		"window_closed", "no_commitment", "already_paid":
		return http.StatusConflict
	case "commitment_mismatch", "proof_rejected":
		return http.StatusUnprocessableEntity
	case "verifier_not_configured":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := core.KindOf(err)
	if kind == "" {
		logger.Errorf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, auctionapi.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(statusFor(kind), auctionapi.ErrorResponse{Error: err.Error(), Kind: kind})
}

// CreateLot handles POST /lots.
func (h *Handler) CreateLot(c *gin.Context) {
	var req auctionapi.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.engine.CreateLot(caller(c), h.now(), req.Params()); err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Created lot %d (producer=%s, duration=%d)", req.LotID, req.Producer, req.Duration)
	c.Status(http.StatusCreated)
}

// GetLot handles GET /lots/:id.
func (h *Handler) GetLot(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	lot, err := h.engine.GetLot(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	paid, err := h.engine.IsPaid(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, auctionapi.LotResponse{
		Lot:   lot,
		State: lot.StateAt(h.now(), paid),
		Paid:  paid,
	})
}

// CommitBid handles POST /lots/:id/commit.
func (h *Handler) CommitBid(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var req auctionapi.CommitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	commitment, err := core.ParseCommitment(req.Commitment)
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.engine.CommitBid(caller(c), h.now(), id, commitment); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevealBid handles POST /lots/:id/reveal.
func (h *Handler) RevealBid(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var req auctionapi.RevealBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	secret, err := req.SecretBytes()
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.engine.RevealBid(caller(c), h.now(), id, req.Amount, secret); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FinalizePlain handles POST /lots/:id/finalize.
func (h *Handler) FinalizePlain(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	if err := h.engine.FinalizePlain(caller(c), id); err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Finalized lot %d (plain)", id)
	h.respondWinner(c, id)
}

// FinalizeWithProof handles POST /lots/:id/finalize-proof.
func (h *Handler) FinalizeWithProof(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var req auctionapi.FinalizeProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	proof, err := req.Proof.Decode()
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	err = h.engine.FinalizeWithProof(caller(c), id, core.Identity(req.DeclaredWinner), req.DeclaredAmount, proof)
	if err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Finalized lot %d (proof, declared winner=%s amount=%d)", id, req.DeclaredWinner, req.DeclaredAmount)
	h.respondWinner(c, id)
}

// VerifyPayment handles POST /lots/:id/payment.
func (h *Handler) VerifyPayment(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var req auctionapi.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	proof, err := req.Proof.Decode()
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.engine.VerifyPayment(caller(c), id, proof); err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Payment verified for lot %d", id)
	c.Status(http.StatusNoContent)
}

// GetWinner handles GET /lots/:id/winner.
func (h *Handler) GetWinner(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	h.respondWinner(c, id)
}

func (h *Handler) respondWinner(c *gin.Context, id uint64) {
	rec, err := h.engine.GetWinner(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := auctionapi.WinnerResponse{LotID: id, Winner: rec}
	if rec != nil {
		lot, err := h.engine.GetLot(id)
		if err != nil {
			h.fail(c, err)
			return
		}
		quote := core.QuoteFor(rec.Amount, &lot)
		resp.Quote = &quote
	}
	c.JSON(http.StatusOK, resp)
}

// IsPaid handles GET /lots/:id/paid.
func (h *Handler) IsPaid(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	paid, err := h.engine.IsPaid(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot_id": id, "paid": paid})
}

// BidderCount handles GET /lots/:id/bidders.
func (h *Handler) BidderCount(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	n, err := h.engine.BidderCount(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot_id": id, "bidder_count": n})
}

// BidderAt handles GET /lots/:id/bidders/:index.
func (h *Handler) BidderAt(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: "invalid bidder index"})
		return
	}
	bidder, err := h.engine.BidderAt(id, index)
	if err != nil {
		if core.KindOf(err) != "" {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusNotFound, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot_id": id, "index": index, "bidder": bidder})
}

// EventsByLot handles GET /lots/:id/events.
func (h *Handler) EventsByLot(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	events, err := h.engine.EventsByLot(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// DebugReveal handles POST /lots/:id/debug-reveal. Diagnostic comparison of a
// recomputed commitment against the stored one; never an authorization input.
func (h *Handler) DebugReveal(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var req auctionapi.RevealBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	secret, err := req.SecretBytes()
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	diag, err := h.engine.DebugReveal(caller(c), id, req.Amount, secret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, diag)
}

// PreviewHash handles POST /preview: the non-binding UI preview hash. The
// response is never accepted as a commitment by the engine.
func (h *Handler) PreviewHash(c *gin.Context) {
	var req auctionapi.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	secret, err := (&auctionapi.RevealBidRequest{Secret: req.Secret}).SecretBytes()
	if err != nil {
		c.JSON(http.StatusBadRequest, auctionapi.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preview": core.PreviewHash(req.Amount, secret).Hex()})
}
