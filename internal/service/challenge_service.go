package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/risk"
)

// CreateChallengeRequest describes a purchase. Plan takes precedence over
// InitialBalance when both are set.
type CreateChallengeRequest struct {
	OwnerID        string
	Plan           string
	InitialBalance decimal.Decimal
}

// ChallengeView is a challenge with its current risk snapshot.
type ChallengeView struct {
	Challenge domain.Challenge `json:"challenge"`
	Risk      risk.Snapshot    `json:"risk"`
	// Pending counts ledger entries not yet durable.
	Pending int `json:"pending"`
}

// ChallengeService creates challenges and serves their read models. All
// mutations after creation go through TradeService.
type ChallengeService struct {
	challenges domain.ChallengeStore
	entries    domain.LedgerStore
	events     domain.EventStore
	trades     *TradeService
	bus        domain.SignalBus
	audit      domain.AuditStore
	plans      []domain.Plan
	limits     domain.Limits
	now        func() time.Time
	logger     *slog.Logger
}

// NewChallengeService creates a ChallengeService.
func NewChallengeService(
	challenges domain.ChallengeStore,
	entries domain.LedgerStore,
	events domain.EventStore,
	trades *TradeService,
	bus domain.SignalBus,
	audit domain.AuditStore,
	plans []domain.Plan,
	limits domain.Limits,
	logger *slog.Logger,
) *ChallengeService {
	return &ChallengeService{
		challenges: challenges,
		entries:    entries,
		events:     events,
		trades:     trades,
		bus:        bus,
		audit:      audit,
		plans:      plans,
		limits:     limits,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "challenge_service")),
	}
}

// Plans returns the purchasable plans.
func (s *ChallengeService) Plans() []domain.Plan {
	out := make([]domain.Plan, len(s.plans))
	copy(out, s.plans)
	return out
}

// Plan looks up a plan by case-insensitive name.
func (s *ChallengeService) Plan(name string) (domain.Plan, error) {
	for _, p := range s.plans {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("challenge_service: plan %q: %w", name, domain.ErrUnknownPlan)
}

// CreateChallenge creates an ACTIVE challenge with limits derived from the
// initial balance. Creation must be durable; store errors are returned.
func (s *ChallengeService) CreateChallenge(ctx context.Context, req CreateChallengeRequest) (domain.Challenge, error) {
	initial := req.InitialBalance
	planName := ""
	if req.Plan != "" {
		p, err := s.Plan(req.Plan)
		if err != nil {
			return domain.Challenge{}, err
		}
		initial = p.Capital
		planName = p.Name
	}

	ch, err := domain.NewChallenge(uuid.NewString(), strings.TrimSpace(req.OwnerID), planName, initial, s.limits, s.now())
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("challenge_service: new challenge: %w", err)
	}
	if err := s.challenges.CreateChallenge(ctx, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("challenge_service: create challenge: %w", err)
	}

	if evt, err := json.Marshal(busMessage{Type: "challenge_created", Payload: ch}); err == nil {
		if pubErr := s.bus.Publish(ctx, domain.ChannelChallenges, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "challenge_service: publish event failed",
				slog.String("challenge_id", ch.ID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	if auditErr := s.audit.Log(ctx, "challenge_created", map[string]any{
		"challenge_id":    ch.ID,
		"user_id":         ch.OwnerID,
		"plan":            ch.Plan,
		"initial_balance": ch.InitialBalance.String(),
		"max_daily_loss":  ch.MaxDailyLoss.String(),
		"max_total_loss":  ch.MaxTotalLoss.String(),
		"profit_target":   ch.ProfitTarget.String(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "challenge_service: audit log failed",
			slog.String("challenge_id", ch.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "challenge_service: challenge created",
		slog.String("challenge_id", ch.ID),
		slog.String("user_id", ch.OwnerID),
		slog.String("plan", ch.Plan),
		slog.String("initial_balance", ch.InitialBalance.String()),
	)
	return ch, nil
}

// GetChallenge returns the latest known challenge state with its risk snapshot.
func (s *ChallengeService) GetChallenge(ctx context.Context, id string) (ChallengeView, error) {
	ch, err := s.trades.Current(ctx, id)
	if err != nil {
		return ChallengeView{}, fmt.Errorf("challenge_service: get challenge %s: %w", id, err)
	}
	daily, err := s.trades.DailyPnL(ctx, id)
	if err != nil {
		return ChallengeView{}, fmt.Errorf("challenge_service: daily pnl %s: %w", id, err)
	}
	return ChallengeView{
		Challenge: ch,
		Risk:      risk.Assess(ch, daily),
		Pending:   len(s.trades.PendingEntries(id)),
	}, nil
}

// ListChallenges returns the user's challenges, newest first. Challenges
// with local-only state are reported at that state.
func (s *ChallengeService) ListChallenges(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Challenge, error) {
	list, err := s.challenges.ListChallenges(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: list challenges for %s: %w", ownerID, err)
	}
	for i, c := range list {
		if local, ok := s.trades.local.latest(c.ID); ok {
			list[i] = local
		}
	}
	return list, nil
}

// Entries returns the challenge's ledger in insertion order, local-only
// entries last.
func (s *ChallengeService) Entries(ctx context.Context, challengeID string) ([]domain.LedgerEntry, error) {
	if _, err := s.trades.Current(ctx, challengeID); err != nil {
		return nil, fmt.Errorf("challenge_service: entries %s: %w", challengeID, err)
	}
	entries, err := s.entries.EntriesFor(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: entries %s: %w", challengeID, err)
	}
	return append(entries, s.trades.PendingEntries(challengeID)...), nil
}

// Events returns the challenge's lifecycle events.
func (s *ChallengeService) Events(ctx context.Context, challengeID string) ([]domain.LifecycleEvent, error) {
	if _, err := s.trades.Current(ctx, challengeID); err != nil {
		return nil, fmt.Errorf("challenge_service: events %s: %w", challengeID, err)
	}
	events, err := s.events.EventsFor(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: events %s: %w", challengeID, err)
	}
	return append(events, s.trades.PendingEvents(challengeID)...), nil
}

// UserTrades returns the user's durable ledger entries across challenges.
func (s *ChallengeService) UserTrades(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	entries, err := s.entries.ListEntries(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: trades for %s: %w", ownerID, err)
	}
	return entries, nil
}

// History returns the user's completed challenges.
func (s *ChallengeService) History(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.ChallengeHistory, error) {
	h, err := s.events.ListHistory(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: history for %s: %w", ownerID, err)
	}
	return h, nil
}

// Leaderboard ranks challenges by profit percentage.
func (s *ChallengeService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.challenges.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("challenge_service: leaderboard: %w", err)
	}
	return rows, nil
}
