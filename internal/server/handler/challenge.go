package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/service"
)

// ChallengeService defines the methods that the challenge handler requires
// from the service layer.
type ChallengeService interface {
	Plans() []domain.Plan
	CreateChallenge(ctx context.Context, req service.CreateChallengeRequest) (domain.Challenge, error)
	GetChallenge(ctx context.Context, id string) (service.ChallengeView, error)
	ListChallenges(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Challenge, error)
	Events(ctx context.Context, challengeID string) ([]domain.LifecycleEvent, error)
	UserTrades(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	History(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.ChallengeHistory, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// ChallengeHandler serves plan, challenge and per-user read endpoints.
type ChallengeHandler struct {
	challenges ChallengeService
	logger     *slog.Logger
}

// NewChallengeHandler creates a ChallengeHandler with the given service and logger.
func NewChallengeHandler(challenges ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		logger:     logHandler(logger, "challenge"),
	}
}

type createChallengeRequest struct {
	Plan           string           `json:"plan"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

// ListPlans returns the purchasable plans.
// GET /api/plans
func (h *ChallengeHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": h.challenges.Plans()})
}

// CreateChallenge buys a challenge for the user, either by plan name or with
// an explicit initial balance.
// POST /api/users/{userID}/challenges
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var body createChallengeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := service.CreateChallengeRequest{
		OwnerID: pathParam(r, "userID"),
		Plan:    strings.TrimSpace(body.Plan),
	}
	if body.InitialBalance != nil {
		req.InitialBalance = *body.InitialBalance
	}
	if req.Plan == "" && body.InitialBalance == nil {
		writeError(w, http.StatusBadRequest, "plan or initial_balance is required")
		return
	}

	ch, err := h.challenges.CreateChallenge(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create challenge", err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// ListUserChallenges returns the user's challenges.
// GET /api/users/{userID}/challenges?limit=50&offset=0
func (h *ChallengeHandler) ListUserChallenges(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.challenges.ListChallenges(r.Context(), pathParam(r, "userID"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list challenges", err)
		return
	}
	if list == nil {
		list = []domain.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

// GetChallenge returns the challenge with its risk snapshot.
// GET /api/challenges/{id}
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	view, err := h.challenges.GetChallenge(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get challenge", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListEvents returns the challenge's lifecycle transitions.
// GET /api/challenges/{id}/events
func (h *ChallengeHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.challenges.Events(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []domain.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListUserTrades returns the user's trades across challenges.
// GET /api/users/{userID}/trades?since=...&until=...
func (h *ChallengeHandler) ListUserTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trades, err := h.challenges.UserTrades(r.Context(), pathParam(r, "userID"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list user trades", err)
		return
	}
	if trades == nil {
		trades = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListHistory returns the user's completed challenges.
// GET /api/users/{userID}/history
func (h *ChallengeHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := h.challenges.History(r.Context(), pathParam(r, "userID"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list history", err)
		return
	}
	if history == nil {
		history = []domain.ChallengeHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// Leaderboard ranks challenges by profit percentage.
// GET /api/leaderboard?limit=10
func (h *ChallengeHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.challenges.Leaderboard(r.Context(), opts.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "leaderboard", err)
		return
	}
	if rows == nil {
		rows = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": rows})
}
