package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// TradeService defines the mutations the trade handler requires from the
// service layer.
type TradeService interface {
	ExecuteTrade(ctx context.Context, challengeID string, req domain.TradeRequest) (domain.TradeResult, error)
	ForceComplete(ctx context.Context, challengeID string) (domain.CompletionResult, error)
}

// EntryLister lists a challenge's ledger entries.
type EntryLister interface {
	Entries(ctx context.Context, challengeID string) ([]domain.LedgerEntry, error)
}

// TradeHandler serves trade execution and ledger endpoints.
type TradeHandler struct {
	trades  TradeService
	entries EntryLister
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, entries EntryLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:  trades,
		entries: entries,
		logger:  logHandler(logger, "trade"),
	}
}

// executeTradeRequest is the JSON body of a trade. Decimals accept either
// JSON strings or numbers.
type executeTradeRequest struct {
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	RequestID string          `json:"request_id"`
}

// ExecuteTrade applies one simulated trade to the challenge. An
// Idempotency-Key header overrides request_id in the body.
// POST /api/challenges/{id}/trades
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body executeTradeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// An unknown side is passed through; the service rejects it after the
	// challenge status check.
	side, err := domain.ParseSide(body.Side)
	if err != nil {
		side = domain.Side(strings.ToUpper(strings.TrimSpace(body.Side)))
	}
	requestID := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if requestID == "" {
		requestID = strings.TrimSpace(body.RequestID)
	}

	res, err := h.trades.ExecuteTrade(r.Context(), pathParam(r, "id"), domain.TradeRequest{
		Symbol:    strings.TrimSpace(body.Symbol),
		Side:      side,
		Price:     body.Price,
		Quantity:  body.Quantity,
		RequestID: requestID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "execute trade", err)
		return
	}

	status := http.StatusCreated
	if res.Durability == domain.DurabilityLocalOnly {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ListTrades returns the challenge's ledger in insertion order.
// GET /api/challenges/{id}/trades
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.Entries(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list trades", err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": entries})
}

// Complete resolves the challenge on user request: passed at the profit
// target, failed past the total loss bound, otherwise left active.
// POST /api/challenges/{id}/complete
func (h *TradeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.trades.ForceComplete(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "complete challenge", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
