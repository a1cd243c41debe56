package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var rewardTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reward_transitions_total",
		Help: "Reward status transitions performed by the ledger",
	},
	[]string{"to"},
)

func init() {
	prometheus.MustRegister(rewardTransitions)
}

type CreateRewardInput struct {
	Wallet       string
	Source       domain.RewardSource
	Payout       domain.Payout
	MissionID    *string
	Description  string
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
}

// SettleSummary reports one settlement pass.
type SettleSummary struct {
	Expired   int  `json:"expired"`
	Selected  int  `json:"selected"`
	Settled   int  `json:"settled"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Remaining int  `json:"remaining"`
	TimedOut  bool `json:"timed_out"`
}

// Ledger owns the reward lifecycle: creation, settlement and claims.
type Ledger struct {
	store   store.Store
	settler settlement.Settler
	cfg     config.LedgerConfig
	audit   *AuditService
	notify  Notifier
	now     func() time.Time
	log     *slog.Logger

	// unitTimeout bounds one reward once it is locked; the caller's
	// cancellation no longer applies from that point.
	unitTimeout time.Duration
}

const (
	defaultUnitTimeout = 30 * time.Second
	finishTimeout      = 10 * time.Second
)

func NewLedger(st store.Store, settler settlement.Settler, cfg config.LedgerConfig, audit *AuditService, notify Notifier) *Ledger {
	return &Ledger{
		store:   st,
		settler: settler,
		cfg:     cfg,
		audit:   audit,
		notify:  orNop(notify),
		now:     time.Now,
		log:     logger.Component("ledger"),

		unitTimeout: defaultUnitTimeout,
	}
}

// Create records a pending reward. It has no balance effect until settled.
func (l *Ledger) Create(ctx context.Context, in CreateRewardInput) (*domain.Reward, error) {
	if in.Wallet == "" {
		return nil, domain.Validation("wallet is required")
	}
	if !in.Source.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown reward source %q", in.Source))
	}
	if err := in.Payout.Validate(); err != nil {
		return nil, err
	}

	now := l.now()
	r := &domain.Reward{
		ID:           uuid.New(),
		Wallet:       in.Wallet,
		Source:       in.Source,
		Payout:       in.Payout,
		Status:       domain.RewardPending,
		MissionID:    in.MissionID,
		Description:  in.Description,
		ScheduledFor: in.ScheduledFor,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.store.CreateReward(ctx, r); err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}

	l.audit.LogReward(ctx, r, domain.AuditActionRewardCreate, nil)
	l.notify.Publish(r.Wallet, event(domain.EventRewardCreated, r, now))
	return r, nil
}

// PointsFor converts a currency amount into leaderboard points.
func (l *Ledger) PointsFor(c domain.Currency, amount decimal.Decimal) int64 {
	rate, ok := l.cfg.PointsPerUnit[string(c)]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return amount.Mul(rate).Floor().IntPart()
}

// settlementDelta is the user credit a settled reward produces.
func (l *Ledger) settlementDelta(r *domain.Reward, now time.Time) domain.UserDelta {
	var d domain.UserDelta
	switch r.Payout.Kind {
	case domain.PayoutCurrency:
		d.PendingRewards = r.Payout.Amount
		d.TotalRewardsEarned = r.Payout.Amount
		d.Points = l.PointsFor(r.Payout.Currency, r.Payout.Amount)
	case domain.PayoutPoints:
		d.Points = r.Payout.Amount.IntPart()
	case domain.PayoutBadge:
		d.Badge = &domain.Badge{Name: r.Payout.Badge, Source: string(r.Source), EarnedAt: now}
	}
	return d
}

// SettlePending expires stale rewards, then settles due ones oldest first
// until the batch or the time budget runs out. Rewards left over stay
// pending for the next pass.
func (l *Ledger) SettlePending(ctx context.Context, batchLimit int, budget time.Duration) (SettleSummary, error) {
	started := time.Now()
	var sum SettleSummary

	expired, err := l.store.ExpireRewards(ctx, l.now())
	if err != nil {
		return sum, fmt.Errorf("expire rewards: %w", err)
	}
	sum.Expired = expired
	if expired > 0 {
		rewardTransitions.WithLabelValues(string(domain.RewardExpired)).Add(float64(expired))
		l.audit.Log(ctx, "", domain.AuditActionRewardExpire, domain.AuditCategoryReward, map[string]interface{}{"count": expired})
	}

	due, err := l.store.ListDueRewards(ctx, l.now(), batchLimit)
	if err != nil {
		return sum, fmt.Errorf("list due rewards: %w", err)
	}
	sum.Selected = len(due)

	for i, r := range due {
		if time.Since(started) > budget || ctx.Err() != nil {
			sum.Remaining = len(due) - i
			sum.TimedOut = true
			l.log.Warn("settlement budget exhausted", "remaining", sum.Remaining, "elapsed", time.Since(started))
			break
		}
		l.settleOne(ctx, r, &sum)
	}

	l.log.Info("settlement pass finished",
		"expired", sum.Expired, "selected", sum.Selected, "settled", sum.Settled,
		"failed", sum.Failed, "skipped", sum.Skipped, "elapsed", time.Since(started))
	return sum, nil
}

func (l *Ledger) settleOne(ctx context.Context, r *domain.Reward, sum *SettleSummary) {
	log := l.log.With("reward_id", r.ID, "wallet", r.Wallet)

	ok, err := l.store.TransitionReward(ctx, r.ID, domain.RewardPending, domain.RewardProcessing, domain.RewardUpdate{At: l.now()})
	if err != nil {
		log.Error("failed to lock reward", "error", err)
		sum.Skipped++
		return
	}
	if !ok {
		// another run took it
		sum.Skipped++
		return
	}
	rewardTransitions.WithLabelValues(string(domain.RewardProcessing)).Inc()

	// a locked reward is carried to a terminal state even if ctx ends
	unit, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.unitTimeout)
	token, err := l.settler.Settle(unit, r)
	cancel()
	if err != nil {
		l.fail(ctx, r, err, sum)
		return
	}

	ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	now := l.now()
	ok, err = l.store.CreditReward(ctx, r.ID, domain.RewardUpdate{
		SettlementToken: token,
		ProcessedAt:     &now,
		At:              now,
	}, l.settlementDelta(r, now))
	if err != nil {
		l.fail(ctx, r, fmt.Errorf("credit: %w", err), sum)
		return
	}
	if !ok {
		sum.Skipped++
		return
	}

	sum.Settled++
	rewardTransitions.WithLabelValues(string(domain.RewardCompleted)).Inc()
	r.Status = domain.RewardCompleted
	r.SettlementToken = token
	r.ProcessedAt = &now
	l.audit.LogReward(ctx, r, domain.AuditActionRewardSettle, map[string]interface{}{"token": token})
	l.notify.Publish(r.Wallet, event(domain.EventRewardSettled, r, now))
	log.Debug("reward settled")
}

func (l *Ledger) fail(ctx context.Context, r *domain.Reward, cause error, sum *SettleSummary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	now := l.now()
	sum.Failed++
	l.log.Warn("reward settlement failed", "reward_id", r.ID, "error", cause)

	ok, err := l.store.TransitionReward(ctx, r.ID, domain.RewardProcessing, domain.RewardFailed, domain.RewardUpdate{
		Error:       cause.Error(),
		ProcessedAt: &now,
		At:          now,
	})
	if err != nil || !ok {
		// stays in processing; visible through CountRewards
		l.log.Error("failed to mark reward failed", "reward_id", r.ID, "error", err)
		return
	}
	rewardTransitions.WithLabelValues(string(domain.RewardFailed)).Inc()
	r.Status = domain.RewardFailed
	r.Error = cause.Error()
	l.audit.LogReward(ctx, r, domain.AuditActionRewardFail, map[string]interface{}{"error": cause.Error()})
	l.notify.Publish(r.Wallet, event(domain.EventRewardFailed, r, now))
}

// Claim claims one settled reward when rewardID is set, otherwise the whole
// pending balance of the wallet.
func (l *Ledger) Claim(ctx context.Context, wallet string, rewardID *uuid.UUID) (*domain.ClaimResult, error) {
	if rewardID == nil {
		return l.claimAll(ctx, wallet)
	}
	now := l.now()

	r, err := l.store.GetReward(ctx, *rewardID)
	if err != nil {
		return nil, err
	}
	if r.Wallet != wallet {
		return nil, domain.NotFound("reward")
	}

	switch {
	case r.Status == domain.RewardExpired:
		return nil, domain.ErrExpired
	case r.Status == domain.RewardPending && r.ExpiredAt(now):
		ok, err := l.store.TransitionReward(ctx, r.ID, domain.RewardPending, domain.RewardExpired, domain.RewardUpdate{At: now})
		if err != nil {
			return nil, err
		}
		if ok {
			rewardTransitions.WithLabelValues(string(domain.RewardExpired)).Inc()
			l.audit.LogReward(ctx, r, domain.AuditActionRewardExpire, nil)
		}
		return nil, domain.ErrExpired
	case !r.Claimable():
		return nil, domain.NotFound("claimable reward")
	}

	claimed, err := l.store.ClaimReward(ctx, r.ID, wallet, now)
	if err != nil {
		return nil, err
	}

	res := &domain.ClaimResult{Amount: claimed.Payout.Amount, RewardID: &claimed.ID}
	if u, err := l.store.GetUser(ctx, wallet); err == nil {
		s := u.Summary()
		res.User = &s
	}
	l.audit.LogReward(ctx, claimed, domain.AuditActionRewardClaim, map[string]interface{}{"claimed": res.Amount.String()})
	l.notify.Publish(wallet, event(domain.EventRewardClaimed, res, now))
	return res, nil
}

func (l *Ledger) claimAll(ctx context.Context, wallet string) (*domain.ClaimResult, error) {
	now := l.now()
	amount, err := l.store.ClaimPendingBalance(ctx, wallet, now)
	if err != nil {
		if errors.Is(err, domain.ErrNothingToClaim) {
			return nil, err
		}
		return nil, fmt.Errorf("claim pending balance: %w", err)
	}

	res := &domain.ClaimResult{Amount: amount}
	if u, err := l.store.GetUser(ctx, wallet); err == nil {
		s := u.Summary()
		res.User = &s
	}
	l.audit.Log(ctx, wallet, domain.AuditActionClaimAll, domain.AuditCategoryReward, map[string]interface{}{"amount": amount.String()})
	l.notify.Publish(wallet, event(domain.EventRewardClaimed, res, now))
	return res, nil
}

// ClaimMission acknowledges a completed mission: completed → claimed.
func (l *Ledger) ClaimMission(ctx context.Context, wallet, missionID string) (*domain.ClaimResult, error) {
	um, err := l.store.ClaimUserMission(ctx, wallet, missionID, l.now())
	if err != nil {
		return nil, err
	}
	res := &domain.ClaimResult{Amount: decimal.Zero, Mission: um.RewardsClaimed}
	if um.RewardsClaimed != nil {
		res.Amount = um.RewardsClaimed.Amount
	}
	if u, err := l.store.GetUser(ctx, wallet); err == nil {
		s := u.Summary()
		res.User = &s
	}
	l.audit.LogMission(ctx, wallet, missionID, domain.AuditActionMissionClaim, nil)
	return res, nil
}

func (l *Ledger) ListRewards(ctx context.Context, wallet string, status *domain.RewardStatus, limit int) ([]*domain.Reward, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.store.ListRewards(ctx, wallet, domain.RewardFilter{Status: status, Limit: limit})
}

// Summary returns balances plus the number of completed, unclaimed missions.
func (l *Ledger) Summary(ctx context.Context, wallet string) (*domain.RewardSummary, error) {
	u, err := l.store.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}
	ums, err := l.store.ListUserMissions(ctx, wallet)
	if err != nil {
		return nil, err
	}
	pending := 0
	for _, um := range ums {
		if um.Status == domain.MissionCompleted {
			pending++
		}
	}
	return &domain.RewardSummary{
		Pending:         u.PendingRewards,
		Claimed:         u.ClaimedRewards,
		Total:           u.TotalRewardsEarned,
		PendingMissions: pending,
	}, nil
}
