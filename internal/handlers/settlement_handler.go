package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"github.com/ArowuTest/lottery-settlement/internal/services"
	"github.com/ArowuTest/lottery-settlement/pkg/contract"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"
)

// SettlementHandler handles lottery settlement HTTP requests
type SettlementHandler struct {
	drawService services.DrawService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(drawService services.DrawService) *SettlementHandler {
	return &SettlementHandler{drawService: drawService}
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	var validation *contract.ValidationError
	var payoutErr *services.PayoutError
	var execErr *contract.ExecutionError
	var transportErr *resilience.TransportError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &payoutErr) && payoutErr.Kind == services.PayoutErrorInvalidInput:
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidRunKind):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &execErr), errors.As(err, &transportErr), errors.As(err, &payoutErr),
		errors.Is(err, contract.ErrNotConfirmed), errors.Is(err, contract.ErrSchemaMismatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	slog.Error("Request failed", "action", action, "status", status, "error", err)
	c.JSON(status, gin.H{"error": "Failed to " + action + ": " + err.Error()})
}

// respondRun returns the run record, including its log when the run failed
func respondRun(c *gin.Context, action string, run *models.DrawRun, err error) {
	if err != nil {
		status := statusFor(err)
		slog.Error("Run failed", "action", action, "status", status, "error", err)
		c.JSON(status, gin.H{"error": "Failed to " + action + ": " + err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

// parseStart reads the optional start query parameter as RFC3339 or unix seconds
func parseStart(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("start")
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, true
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
		t := time.Unix(secs, 0).UTC()
		return &t, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start (RFC3339 or unix seconds)"})
	return nil, false
}

// Health handles GET /health
func (h *SettlementHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// GetState handles GET /lottery/state
func (h *SettlementHandler) GetState(c *gin.Context) {
	state, err := h.drawService.GetCompositeState(c.Request.Context())
	if err != nil {
		respondError(c, "read contract state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetIncomingTransactions handles GET /lottery/transactions/incoming
func (h *SettlementHandler) GetIncomingTransactions(c *gin.Context) {
	start, ok := parseStart(c)
	if !ok {
		return
	}
	txs, err := h.drawService.GetIncomingTransactions(c.Request.Context(), start)
	if err != nil {
		respondError(c, "read incoming transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// GetOutgoingTransactions handles GET /lottery/transactions/outgoing
func (h *SettlementHandler) GetOutgoingTransactions(c *gin.Context) {
	start, ok := parseStart(c)
	if !ok {
		return
	}
	txs, err := h.drawService.GetOutgoingTransactions(c.Request.Context(), start)
	if err != nil {
		respondError(c, "read outgoing transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// GetValidEntries handles GET /lottery/entries/valid
func (h *SettlementHandler) GetValidEntries(c *gin.Context) {
	entries, err := h.drawService.GetValidEntries(c.Request.Context())
	if err != nil {
		respondError(c, "compute valid entries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// GetWinners handles GET /lottery/winners
func (h *SettlementHandler) GetWinners(c *gin.Context) {
	run, err := h.drawService.ComputeCurrentWinners(c.Request.Context())
	respondRun(c, "compute winners", run, err)
}

// ExecuteDraw handles POST /lottery/draw
func (h *SettlementHandler) ExecuteDraw(c *gin.Context) {
	run, err := h.drawService.ExecuteDraw(c.Request.Context())
	respondRun(c, "execute draw", run, err)
}

// UpdateJackpot handles POST /lottery/jackpot/update
func (h *SettlementHandler) UpdateJackpot(c *gin.Context) {
	run, err := h.drawService.UpdateJackpot(c.Request.Context())
	respondRun(c, "update jackpot", run, err)
}

// PayoutWinners handles POST /lottery/payout. The body is an object of address to amount.
func (h *SettlementHandler) PayoutWinners(c *gin.Context) {
	payees, ok := bindPayees(c)
	if !ok {
		return
	}
	run, err := h.drawService.PayoutWinners(c.Request.Context(), payees)
	respondRun(c, "pay winners", run, err)
}

// PayoutAffiliates handles POST /lottery/payout/affiliates
func (h *SettlementHandler) PayoutAffiliates(c *gin.Context) {
	payees, ok := bindPayees(c)
	if !ok {
		return
	}
	run, err := h.drawService.PayoutAffiliates(c.Request.Context(), payees)
	respondRun(c, "pay affiliates", run, err)
}

func bindPayees(c *gin.Context) (map[string]float64, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	payees, err := services.ParsePayees(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return payees, true
}

// GetRun handles GET /lottery/runs/:id
func (h *SettlementHandler) GetRun(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	run, err := h.drawService.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, "retrieve run", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /lottery/runs?kind=&limit=
func (h *SettlementHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	kind := models.RunKind(strings.ToUpper(c.Query("kind")))

	runs, err := h.drawService.ListRuns(c.Request.Context(), kind, limit)
	if err != nil {
		respondError(c, "list runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}
