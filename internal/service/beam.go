package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var beamRecipients = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "beam_recipients_total",
		Help: "Wallets selected by beam airdrops",
	},
	[]string{"currency"},
)

func init() {
	prometheus.MustRegister(beamRecipients)
}

// beamBucket - валюта и размер выплаты для одного получателя
type beamBucket struct {
	Currency  domain.Currency
	Base      int64
	Variance  int64
	BonusPerK int64
}

var beamBuckets = []beamBucket{
	{Currency: domain.CurrencyUSDT, Base: 2, Variance: 8, BonusPerK: 1},
	{Currency: domain.CurrencyUFO, Base: 100, Variance: 400, BonusPerK: 50},
}

type candidate struct {
	user   *domain.User
	weight float64
}

// Beam selects weighted random airdrop recipients behind a cooldown.
type Beam struct {
	store  store.Store
	ledger *Ledger
	cfg    config.BeamConfig
	audit  *AuditService
	notify Notifier
	now    func() time.Time
	log    *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBeam(st store.Store, ledger *Ledger, cfg config.BeamConfig, audit *AuditService, notify Notifier) *Beam {
	return &Beam{
		store:  st,
		ledger: ledger,
		cfg:    cfg,
		audit:  audit,
		notify: orNop(notify),
		now:    time.Now,
		log:    logger.Component("beam"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand swaps the random source. Tests use a fixed seed.
func (b *Beam) WithRand(r *rand.Rand) *Beam {
	b.mu.Lock()
	b.rnd = r
	b.mu.Unlock()
	return b
}

func (b *Beam) float() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rnd.Float64()
}

func (b *Beam) intn(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rnd.Intn(n)
}

// RunCycle loads the beam state and runs one cycle at the current time.
func (b *Beam) RunCycle(ctx context.Context) (*domain.BeamOutcome, error) {
	st, err := b.store.LoadBeamState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load beam state: %w", err)
	}
	return b.Run(ctx, st, b.now())
}

// Run fires a beam when the cooldown has passed. The state record is
// claimed with a compare-and-set on LastBeamAt before any reward is
// written, so of two concurrent runs only one beams.
func (b *Beam) Run(ctx context.Context, state *domain.BeamState, now time.Time) (*domain.BeamOutcome, error) {
	if state == nil {
		state = &domain.BeamState{}
	}
	if state.LastBeamAt != nil {
		next := state.LastBeamAt.Add(b.cfg.Cooldown)
		if now.Before(next) {
			return &domain.BeamOutcome{Status: domain.BeamRecharging, NextBeamAt: &next, TotalAmount: decimal.Zero}, nil
		}
	}

	eligible, err := b.eligible(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return &domain.BeamOutcome{Status: domain.BeamNoEligible, TotalAmount: decimal.Zero}, nil
	}

	recipients := b.plan(eligible, now)

	// postgres keeps microseconds; the second save compares against this value
	firedAt := now.Truncate(time.Microsecond)
	claim := state.Clone()
	claim.LastBeamAt = &firedAt
	claim.TotalBeams++
	claim.UpdatedAt = now

	ok, err := b.store.SaveBeamState(ctx, state.LastBeamAt, claim)
	if err != nil {
		return nil, fmt.Errorf("save beam state: %w", err)
	}
	if !ok {
		// проиграли гонку, другой запуск уже выстрелил
		b.log.Info("beam state changed concurrently, skipping")
		return &domain.BeamOutcome{Status: domain.BeamRecharging, TotalAmount: decimal.Zero}, nil
	}
	*state = claim

	out := &domain.BeamOutcome{
		Status:      domain.BeamFired,
		Eligible:    len(eligible),
		TotalAmount: decimal.Zero,
	}
	expires := now.Add(b.cfg.RewardTTL)
	for _, r := range recipients {
		scheduled := r.ScheduledFor
		rw, err := b.ledger.Create(ctx, CreateRewardInput{
			Wallet:       r.Wallet,
			Source:       domain.SourceAirdrop,
			Payout:       domain.CurrencyPayout(r.Currency, r.Amount),
			Description:  fmt.Sprintf("Beam airdrop: %s %s", r.Amount.String(), r.Currency),
			ScheduledFor: &scheduled,
			ExpiresAt:    &expires,
		})
		if err != nil {
			out.FailedWrites++
			b.log.Error("failed to create airdrop reward", "wallet", r.Wallet, "error", err)
			continue
		}
		r.RewardID = rw.ID.String()
		out.Recipients = append(out.Recipients, r)
		out.TotalAmount = out.TotalAmount.Add(r.Amount)
		beamRecipients.WithLabelValues(string(r.Currency)).Inc()
		b.notify.Publish(r.Wallet, event(domain.EventBeamed, r, now))
	}

	// totals count only rewards that were written
	stats := claim.Clone()
	stats.TotalRecipients += int64(len(out.Recipients))
	for _, r := range out.Recipients {
		stats.AmountByCurrency[r.Currency] = stats.AmountByCurrency[r.Currency].Add(r.Amount)
	}
	stats.TotalBeamAmount = stats.TotalBeamAmount.Add(out.TotalAmount)
	if ok, err := b.store.SaveBeamState(ctx, claim.LastBeamAt, stats); err != nil || !ok {
		b.log.Error("failed to record beam totals", "error", err, "recipients", len(out.Recipients))
	} else {
		*state = stats
	}

	b.audit.Log(ctx, "", domain.AuditActionBeamFired, domain.AuditCategoryBeam, map[string]interface{}{
		"eligible":      out.Eligible,
		"recipients":    len(out.Recipients),
		"failed_writes": out.FailedWrites,
		"total_amount":  out.TotalAmount.String(),
	})
	b.log.Info("beam fired", "eligible", out.Eligible, "recipients", len(out.Recipients), "failed_writes", out.FailedWrites)
	return out, nil
}

// eligible returns users active within the window, above the points floor
// and without a recent airdrop.
func (b *Beam) eligible(ctx context.Context, now time.Time) ([]*domain.User, error) {
	users, err := b.store.ListUsers(ctx, domain.UserFilter{
		MinPoints:   b.cfg.MinPoints,
		ActiveSince: now.Add(-b.cfg.ActiveWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	recent, err := b.store.RecentAirdropWallets(ctx, now.Add(-b.cfg.RecentAirdrop))
	if err != nil {
		return nil, fmt.Errorf("recent airdrops: %w", err)
	}

	out := users[:0]
	for _, u := range users {
		if !recent[u.Wallet] {
			out = append(out, u)
		}
	}
	return out, nil
}

// RecipientCount is floor(n * fraction) clamped to [lo, hi], and never
// more than n.
func RecipientCount(n int, fraction float64, lo, hi int) int {
	k := int(math.Floor(float64(n) * fraction))
	if k < lo {
		k = lo
	}
	if k > hi {
		k = hi
	}
	if k > n {
		k = n
	}
	return k
}

func (b *Beam) weight(u *domain.User, now time.Time) float64 {
	w := float64(u.TotalPoints) / b.cfg.PointsWeightScale
	w += u.WinRate() * b.cfg.WinRateBonus
	w += float64(u.SocialLinks()) * b.cfg.SocialBonus
	if now.Sub(u.LastActive) < b.cfg.RecentWindow {
		w += b.cfg.RecentBonus
	}
	return w + b.float()*b.cfg.JitterMax
}

func (b *Beam) plan(users []*domain.User, now time.Time) []domain.BeamRecipient {
	fraction := b.cfg.MinFraction + b.float()*(b.cfg.MaxFraction-b.cfg.MinFraction)
	k := RecipientCount(len(users), fraction, b.cfg.MinRecipients, b.cfg.MaxRecipients)

	cands := make([]candidate, len(users))
	for i, u := range users {
		cands[i] = candidate{user: u, weight: b.weight(u, now)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].weight > cands[j].weight })

	out := make([]domain.BeamRecipient, 0, k)
	for _, c := range cands[:k] {
		bucket := beamBuckets[b.intn(len(beamBuckets))]
		amount := bucket.Base + int64(b.float()*float64(bucket.Variance)) + (c.user.TotalPoints/1000)*bucket.BonusPerK
		delay := time.Duration(b.float() * float64(b.cfg.ScheduleSpread))
		out = append(out, domain.BeamRecipient{
			Wallet:       c.user.Wallet,
			Weight:       c.weight,
			Currency:     bucket.Currency,
			Amount:       decimal.NewFromInt(amount),
			ScheduledFor: now.Add(delay),
		})
	}
	return out
}
