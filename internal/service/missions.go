package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var missionCompletions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mission_completions_total",
		Help: "Mission completions by trigger",
	},
	[]string{"trigger"},
)

func init() {
	prometheus.MustRegister(missionCompletions)
}

// Evaluation is the outcome of evaluating one user mission.
type Evaluation struct {
	Progress  domain.Progress
	Completed bool
}

// Evaluate computes progress for um (nil when the user never participated).
// Progress never goes below the stored one.
func Evaluate(um *domain.UserMission, u *domain.User, m *domain.Mission, now time.Time) Evaluation {
	req := m.Requirement
	var prev domain.Progress
	if um != nil {
		prev = um.Progress
	}

	var current, required, pct float64
	switch req.Type.Shape() {
	case domain.ShapeCount:
		required = req.Target
		if required <= 0 {
			required = 1
		}
		current = countFor(req.Type, u)
		pct = math.Min(current/required, 1) * 100

	case domain.ShapeDuration:
		required = req.TimeLimitHours
		if required <= 0 {
			required = req.Target
		}
		if required <= 0 {
			required = 1
		}
		started := now
		if um != nil && !um.StartedAt.IsZero() {
			started = um.StartedAt
		}
		current = math.Floor(now.Sub(started).Hours())
		if current < 0 {
			current = 0
		}
		pct = math.Min(current/required, 1) * 100

	case domain.ShapeBoolean:
		required = 1
		if linked(req.Type, u) {
			current, pct = 1, 100
		}

	default:
		required = prev.Required
	}

	if pct < prev.Percentage {
		pct = prev.Percentage
		current = math.Max(current, prev.Current)
	}
	return Evaluation{
		Progress:  domain.Progress{Current: current, Required: required, Percentage: pct},
		Completed: pct >= 100,
	}
}

func countFor(t domain.RequirementType, u *domain.User) float64 {
	switch t {
	case domain.ReqPlayGames:
		return float64(u.GamesPlayed)
	case domain.ReqWinGames:
		return float64(u.GamesWon)
	case domain.ReqTrade:
		return float64(u.TradeCount)
	case domain.ReqTradeVolume:
		v, _ := u.TradingVolume.Float64()
		return v
	case domain.ReqReferral:
		return float64(u.Referrals)
	case domain.ReqMissionsCompleted:
		return float64(u.MissionsCompleted)
	}
	return 0
}

// linked reports whether the boolean requirement is backed by a linked
// account. share and checkin are only satisfied through Complete.
func linked(t domain.RequirementType, u *domain.User) bool {
	switch t {
	case domain.ReqSocialLink:
		return u.SocialLinks() > 0
	case domain.ReqFollow:
		return u.TwitterHandle != ""
	case domain.ReqJoin:
		return u.TelegramID != "" || u.DiscordID != ""
	}
	return false
}

type ApplyResult struct {
	Progress  domain.Progress `json:"progress"`
	Completed bool            `json:"completed"`
}

type CompleteResult struct {
	Rewards domain.RewardSnapshot `json:"rewards"`
	Reward  *domain.Reward        `json:"reward,omitempty"`
	User    domain.UserSummary    `json:"user"`
}

type SweepSummary struct {
	Selected  int  `json:"selected"`
	Evaluated int  `json:"evaluated"`
	Completed int  `json:"completed"`
	Errors    int  `json:"errors"`
	Remaining int  `json:"remaining"`
	TimedOut  bool `json:"timed_out"`
}

// MissionTracker drives user missions from participation to completion.
type MissionTracker struct {
	store     store.Store
	rewardTTL time.Duration
	audit     *AuditService
	notify    Notifier
	now       func() time.Time
	log       *slog.Logger
}

func NewMissionTracker(st store.Store, rewardTTL time.Duration, audit *AuditService, notify Notifier) *MissionTracker {
	return &MissionTracker{
		store:     st,
		rewardTTL: rewardTTL,
		audit:     audit,
		notify:    orNop(notify),
		now:       time.Now,
		log:       logger.Component("missions"),
	}
}

// ListMissions returns the missions available right now.
func (t *MissionTracker) ListMissions(ctx context.Context) ([]*domain.Mission, error) {
	all, err := t.store.ListMissions(ctx, true)
	if err != nil {
		return nil, err
	}
	now := t.now()
	out := make([]*domain.Mission, 0, len(all))
	for _, m := range all {
		if m.Available(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListForWallet joins available missions with the wallet's progress.
// Missions the wallet already finished stay listed even when expired.
func (t *MissionTracker) ListForWallet(ctx context.Context, wallet string) ([]domain.UserMissionWithDetails, error) {
	all, err := t.store.ListMissions(ctx, false)
	if err != nil {
		return nil, err
	}
	ums, err := t.store.ListUserMissions(ctx, wallet)
	if err != nil {
		return nil, err
	}
	byMission := make(map[string]*domain.UserMission, len(ums))
	for _, um := range ums {
		byMission[um.MissionID] = um
	}

	now := t.now()
	out := make([]domain.UserMissionWithDetails, 0, len(all))
	for _, m := range all {
		um := byMission[m.ID]
		if !m.Available(now) && um == nil {
			continue
		}
		out = append(out, domain.UserMissionWithDetails{Mission: *m, Progress: um})
	}
	return out, nil
}

// Participate starts a mission for the wallet. An existing participation is
// returned unchanged.
func (t *MissionTracker) Participate(ctx context.Context, wallet, missionID string) (*domain.UserMission, error) {
	now := t.now()
	m, err := t.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !m.Available(now) {
		return nil, domain.Validation("mission is not available")
	}
	if _, err := t.store.GetUser(ctx, wallet); err != nil {
		return nil, err
	}

	um := &domain.UserMission{
		Wallet:    wallet,
		MissionID: missionID,
		Status:    domain.MissionInProgress,
		Progress:  domain.Progress{Required: m.Requirement.Target},
		StartedAt: now,
	}
	row, created, err := t.store.Participate(ctx, um)
	if err != nil {
		return nil, err
	}
	if created {
		t.audit.LogMission(ctx, wallet, missionID, domain.AuditActionParticipate, nil)
	}
	return row, nil
}

// Apply evaluates one user mission, stores the progress and fires the
// completion exactly once on the transition to 100%.
func (t *MissionTracker) Apply(ctx context.Context, wallet, missionID string) (*ApplyResult, error) {
	um, err := t.store.GetUserMission(ctx, wallet, missionID)
	if err != nil {
		return nil, err
	}
	if um.Status.Done() {
		return &ApplyResult{Progress: um.Progress}, nil
	}
	m, err := t.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	u, err := t.store.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}

	now := t.now()
	ev := Evaluate(um, u, m, now)

	// the completion cap is checked at participation, not here
	if ev.Completed && m.Available(now) {
		won, _, err := t.complete(ctx, u, m, ev.Progress, now, "sweep", false)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Progress: ev.Progress, Completed: won}, nil
	}

	if err := t.store.SaveProgress(ctx, wallet, missionID, ev.Progress, now); err != nil {
		return nil, err
	}
	if ev.Progress.Percentage > um.Progress.Percentage {
		t.notify.Publish(wallet, event(domain.EventMissionProgress, map[string]interface{}{
			"mission_id": missionID,
			"progress":   ev.Progress,
		}, now))
	}
	return &ApplyResult{Progress: ev.Progress}, nil
}

// Complete is the explicit verification path. Boolean requirements are
// satisfied by the call itself (with a proof where one is needed); count and
// duration requirements must already be met.
func (t *MissionTracker) Complete(ctx context.Context, wallet, missionID, proof string) (*CompleteResult, error) {
	now := t.now()
	m, err := t.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !m.Available(now) {
		return nil, domain.Validation("mission is not available")
	}
	u, err := t.store.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}

	um, err := t.store.GetUserMission(ctx, wallet, missionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if um != nil && um.Status.Done() {
		return nil, domain.Conflict("mission already completed")
	}
	// without a row this call joins the mission, so the cap applies
	if um == nil && m.CapReached() {
		return nil, domain.Conflict("mission completion cap reached")
	}

	var progress domain.Progress
	switch m.Requirement.Type.Shape() {
	case domain.ShapeBoolean:
		if m.Requirement.Type.NeedsProof() && proof == "" {
			return nil, domain.Validation("proof is required for this mission")
		}
		progress = domain.Progress{Current: 1, Required: 1, Percentage: 100}
	case domain.ShapeCount, domain.ShapeDuration:
		ev := Evaluate(um, u, m, now)
		if !ev.Completed {
			return nil, domain.Validation(fmt.Sprintf("requirement not met: %.0f/%.0f", ev.Progress.Current, ev.Progress.Required))
		}
		progress = ev.Progress
	default:
		return nil, domain.Validation(fmt.Sprintf("unsupported requirement %q", m.Requirement.Type))
	}

	won, c, err := t.complete(ctx, u, m, progress, now, "api", true)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.Conflict("mission already completed")
	}

	c.Delta.Apply(u)
	return &CompleteResult{Rewards: c.Snapshot, Reward: c.Reward, User: u.Summary()}, nil
}

// complete builds the completion unit and hands it to the store. Only the
// winning caller sees won=true and emits the side effects.
func (t *MissionTracker) complete(ctx context.Context, u *domain.User, m *domain.Mission, progress domain.Progress, now time.Time, trigger string, touch bool) (bool, *domain.Completion, error) {
	snap := domain.RewardSnapshot{
		Points:   m.Reward.Points,
		Currency: m.Reward.Currency,
		Amount:   m.Reward.Amount,
		Badge:    m.Reward.Badge,
	}
	delta := domain.UserDelta{Points: m.Reward.Points, MissionsCompleted: 1}
	if touch {
		delta.TouchedAt = now
	}
	if m.Reward.Badge != "" && !u.HasBadge(m.Reward.Badge) {
		delta.Badge = &domain.Badge{
			Name:     m.Reward.Badge,
			Rarity:   string(m.Difficulty),
			Source:   "mission:" + m.ID,
			EarnedAt: now,
		}
	}

	var reward *domain.Reward
	if m.Reward.HasCurrency() {
		mid := m.ID
		expires := now.Add(t.rewardTTL)
		reward = &domain.Reward{
			ID:          uuid.New(),
			Wallet:      u.Wallet,
			Source:      domain.SourceMission,
			Payout:      domain.CurrencyPayout(m.Reward.Currency, m.Reward.Amount),
			Status:      domain.RewardPending,
			MissionID:   &mid,
			Description: "Mission completed: " + m.Title,
			ExpiresAt:   &expires,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	c := &domain.Completion{
		Wallet:    u.Wallet,
		MissionID: m.ID,
		Progress:  progress,
		Snapshot:  snap,
		Reward:    reward,
		Delta:     delta,
		At:        now,
	}
	won, err := t.store.CompleteMission(ctx, *c)
	if err != nil {
		return false, nil, fmt.Errorf("complete mission %s: %w", m.ID, err)
	}
	if !won {
		return false, c, nil
	}

	missionCompletions.WithLabelValues(trigger).Inc()
	t.log.Info("mission completed", "wallet", u.Wallet, "mission_id", m.ID, "trigger", trigger)
	t.audit.LogMission(ctx, u.Wallet, m.ID, domain.AuditActionMissionComplete, map[string]interface{}{
		"points":  snap.Points,
		"trigger": trigger,
	})
	if reward != nil {
		t.audit.LogReward(ctx, reward, domain.AuditActionRewardCreate, nil)
	}
	t.notify.Publish(u.Wallet, event(domain.EventMissionCompleted, map[string]interface{}{
		"mission_id": m.ID,
		"title":      m.Title,
		"rewards":    snap,
	}, now))
	return true, c, nil
}

// Sweep re-evaluates stale unfinished user missions until the batch or the
// budget runs out.
func (t *MissionTracker) Sweep(ctx context.Context, batchLimit int, budget, staleness time.Duration) (SweepSummary, error) {
	started := time.Now()
	var sum SweepSummary

	rows, err := t.store.ListStaleUserMissions(ctx, t.now().Add(-staleness), batchLimit)
	if err != nil {
		return sum, fmt.Errorf("list stale missions: %w", err)
	}
	sum.Selected = len(rows)

	for i, um := range rows {
		if time.Since(started) > budget || ctx.Err() != nil {
			sum.Remaining = len(rows) - i
			sum.TimedOut = true
			break
		}
		res, err := t.Apply(ctx, um.Wallet, um.MissionID)
		if err != nil {
			sum.Errors++
			t.log.Warn("mission evaluation failed", "wallet", um.Wallet, "mission_id", um.MissionID, "error", err)
			continue
		}
		sum.Evaluated++
		if res.Completed {
			sum.Completed++
		}
	}

	t.log.Info("mission sweep finished",
		"selected", sum.Selected, "evaluated", sum.Evaluated, "completed", sum.Completed,
		"errors", sum.Errors, "elapsed", time.Since(started))
	return sum, nil
}
