package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/settlement"
	"mission_rewards/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
	carol = "0x00000000000000000000000000000000000000c3"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func ledgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		SettleBatch: 25,
		PointsPerUnit: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10),
			"UFO":  decimal.NewFromInt(1),
		},
		MissionExpiry: 30 * 24 * time.Hour,
	}
}

// recorder is a Notifier capturing published events.
type recorder struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func newRecorder() *recorder {
	return &recorder{events: map[string][]domain.Event{}}
}

func (r *recorder) Publish(wallet string, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[wallet] = append(r.events[wallet], ev)
}

func (r *recorder) count(wallet, typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events[wallet] {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *store.MemoryStore
	audit    *AuditService
	notify   *recorder
	ledger   *Ledger
	missions *MissionTracker
}

func newFixture(t *testing.T, settler settlement.Settler) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	audit := NewAuditService(st)
	rec := newRecorder()
	if settler == nil {
		settler = settlement.NewSimulated(0, 0)
	}

	ledger := NewLedger(st, settler, ledgerConfig(), audit, rec)
	ledger.now = fixedClock(t0)
	missions := NewMissionTracker(st, 30*24*time.Hour, audit, rec)
	missions.now = fixedClock(t0)

	return &fixture{store: st, audit: audit, notify: rec, ledger: ledger, missions: missions}
}

func (f *fixture) user(t *testing.T, u domain.User) {
	t.Helper()
	if u.Level == 0 {
		u.Level = domain.LevelForPoints(u.TotalPoints)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = t0.Add(-48 * time.Hour)
	}
	f.store.PutUser(&u)
}

func (f *fixture) mission(t *testing.T, m domain.Mission) *domain.Mission {
	t.Helper()
	if m.Title == "" {
		m.Title = m.ID
	}
	if m.StartDate.IsZero() {
		m.StartDate = t0.Add(-24 * time.Hour)
	}
	m.IsActive = true
	require.NoError(t, f.store.UpsertMission(context.Background(), &m))
	return &m
}

func (f *fixture) getUser(t *testing.T, wallet string) *domain.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), wallet)
	require.NoError(t, err)
	return u
}

func playGames(id string, target float64, points int64, usdt int64) domain.Mission {
	return domain.Mission{
		ID:          id,
		Category:    domain.CategoryDaily,
		Difficulty:  domain.DifficultyEasy,
		Requirement: domain.Requirement{Type: domain.ReqPlayGames, Target: target},
		Reward: domain.MissionReward{
			Points:   points,
			Currency: domain.CurrencyUSDT,
			Amount:   decimal.NewFromInt(usdt),
		},
	}
}
