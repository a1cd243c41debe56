package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mission_rewards/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type umKey struct {
	wallet    string
	missionID string
}

// MemoryStore is a mutex-guarded Store used by tests and local runs.
// Values are copied in and out so callers never share state with it.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]domain.User
	missions     map[string]domain.Mission
	userMissions map[umKey]domain.UserMission
	rewards      map[uuid.UUID]domain.Reward
	leaderboard  map[string]domain.LeaderboardEntry
	beam         domain.BeamState
	audit        []domain.AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        map[string]domain.User{},
		missions:     map[string]domain.Mission{},
		userMissions: map[umKey]domain.UserMission{},
		rewards:      map[uuid.UUID]domain.Reward{},
		leaderboard:  map[string]domain.LeaderboardEntry{},
		beam:         domain.BeamState{AmountByCurrency: map[domain.Currency]decimal.Decimal{}},
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// PutUser inserts or replaces a user as is. Test seeding helper.
func (s *MemoryStore) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Wallet] = cloneUser(*u)
}

// AuditLogs returns a copy of the audit trail.
func (s *MemoryStore) AuditLogs() []domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLog(nil), s.audit...)
}

// ---- users ----

func (s *MemoryStore) GetUser(ctx context.Context, wallet string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[wallet]
	if !ok {
		return nil, domain.NotFound("user")
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *MemoryStore) ConnectUser(ctx context.Context, wallet, username string, now time.Time) (*domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[wallet]
	created := false
	if !ok {
		u = domain.User{
			Wallet:    wallet,
			Username:  username,
			Level:     1,
			CreatedAt: now,
		}
		created = true
	}
	u.LastActive = now
	u.UpdatedAt = now
	s.users[wallet] = u

	out := cloneUser(u)
	return &out, created, nil
}

func (s *MemoryStore) SetReferrer(ctx context.Context, wallet, referrer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[wallet]
	if !ok {
		return domain.NotFound("user")
	}
	if u.ReferredBy != nil {
		return domain.Conflict("referrer already set")
	}
	ref := referrer
	u.ReferredBy = &ref
	s.users[wallet] = u
	return nil
}

func (s *MemoryStore) ApplyUserDelta(ctx context.Context, wallet string, d domain.UserDelta) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[wallet]
	if !ok {
		return nil, domain.NotFound("user")
	}
	u = cloneUser(u)
	d.Apply(&u)
	s.users[wallet] = u
	out := cloneUser(u)
	return &out, nil
}

func (s *MemoryStore) ClaimPendingBalance(ctx context.Context, wallet string, now time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[wallet]
	if !ok {
		return decimal.Zero, domain.NotFound("user")
	}
	if !u.PendingRewards.IsPositive() {
		return decimal.Zero, domain.ErrNothingToClaim
	}
	amount := u.PendingRewards
	u.ClaimedRewards = u.ClaimedRewards.Add(amount)
	u.PendingRewards = decimal.Zero
	u.UpdatedAt = now
	s.users[wallet] = u

	for id, r := range s.rewards {
		if r.Wallet == wallet && r.Claimable() {
			t := now
			r.ClaimedAt = &t
			r.UpdatedAt = now
			s.rewards[id] = r
		}
	}
	return amount, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.User
	for _, u := range s.users {
		if u.TotalPoints < f.MinPoints {
			continue
		}
		if !f.ActiveSince.IsZero() && u.LastActive.Before(f.ActiveSince) {
			continue
		}
		c := cloneUser(u)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

// ---- missions ----

func (s *MemoryStore) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, domain.NotFound("mission")
	}
	out := cloneMission(m)
	return &out, nil
}

func (s *MemoryStore) ListMissions(ctx context.Context, activeOnly bool) ([]*domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Mission
	for _, m := range s.missions {
		if activeOnly && !m.IsActive {
			continue
		}
		c := cloneMission(m)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpsertMission(ctx context.Context, m *domain.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.missions[m.ID]; ok {
		// counters are owned by the pipeline, not by the catalog
		m.Participants = prev.Participants
		m.CurrentCompletions = prev.CurrentCompletions
	}
	s.missions[m.ID] = cloneMission(*m)
	return nil
}

// ---- user missions ----

func (s *MemoryStore) GetUserMission(ctx context.Context, wallet, missionID string) (*domain.UserMission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	um, ok := s.userMissions[umKey{wallet, missionID}]
	if !ok {
		return nil, domain.NotFound("user mission")
	}
	out := cloneUserMission(um)
	return &out, nil
}

func (s *MemoryStore) ListUserMissions(ctx context.Context, wallet string) ([]*domain.UserMission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.UserMission
	for k, um := range s.userMissions {
		if k.wallet != wallet {
			continue
		}
		c := cloneUserMission(um)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MissionID < out[j].MissionID })
	return out, nil
}

func (s *MemoryStore) Participate(ctx context.Context, um *domain.UserMission) (*domain.UserMission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := umKey{um.Wallet, um.MissionID}
	if existing, ok := s.userMissions[key]; ok {
		out := cloneUserMission(existing)
		return &out, false, nil
	}
	m, ok := s.missions[um.MissionID]
	if !ok {
		return nil, false, domain.NotFound("mission")
	}
	if m.CapReached() {
		return nil, false, domain.Conflict("mission completion cap reached")
	}
	m.Participants++
	s.missions[m.ID] = m
	s.userMissions[key] = cloneUserMission(*um)

	out := cloneUserMission(*um)
	return &out, true, nil
}

func (s *MemoryStore) SaveProgress(ctx context.Context, wallet, missionID string, p domain.Progress, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := umKey{wallet, missionID}
	um, ok := s.userMissions[key]
	if !ok {
		return domain.NotFound("user mission")
	}
	if p.Percentage > um.Progress.Percentage && um.Status != domain.MissionClaimed {
		um.Progress = p
	}
	if um.Status == domain.MissionNotStarted && p.Percentage > 0 {
		um.Status = domain.MissionInProgress
	}
	t := now
	um.LastEvaluated = &t
	s.userMissions[key] = um
	return nil
}

func (s *MemoryStore) CompleteMission(ctx context.Context, c domain.Completion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := umKey{c.Wallet, c.MissionID}
	um, exists := s.userMissions[key]
	if exists && um.Status.Done() {
		return false, nil
	}
	u, ok := s.users[c.Wallet]
	if !ok {
		return false, domain.NotFound("user")
	}
	m, ok := s.missions[c.MissionID]
	if !ok {
		return false, domain.NotFound("mission")
	}
	if c.Reward != nil {
		if _, dup := s.rewards[c.Reward.ID]; dup {
			return false, domain.Conflict("reward id already used")
		}
	}

	if !exists {
		um = domain.UserMission{Wallet: c.Wallet, MissionID: c.MissionID, StartedAt: c.At}
		m.Participants++
	}
	at := c.At
	snap := c.Snapshot
	um.Status = domain.MissionCompleted
	um.Progress = c.Progress
	um.CompletedAt = &at
	um.LastEvaluated = &at
	um.RewardsClaimed = &snap
	s.userMissions[key] = um

	u = cloneUser(u)
	c.Delta.Apply(&u)
	s.users[c.Wallet] = u

	m.CurrentCompletions++
	s.missions[m.ID] = m

	if c.Reward != nil {
		s.rewards[c.Reward.ID] = cloneReward(*c.Reward)
	}
	return true, nil
}

func (s *MemoryStore) ClaimUserMission(ctx context.Context, wallet, missionID string, now time.Time) (*domain.UserMission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := umKey{wallet, missionID}
	um, ok := s.userMissions[key]
	if !ok || um.Status != domain.MissionCompleted {
		return nil, domain.NotFound("completed mission")
	}
	t := now
	um.Status = domain.MissionClaimed
	um.ClaimedAt = &t
	s.userMissions[key] = um
	out := cloneUserMission(um)
	return &out, nil
}

func (s *MemoryStore) ListStaleUserMissions(ctx context.Context, before time.Time, limit int) ([]*domain.UserMission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.UserMission
	for _, um := range s.userMissions {
		if um.Status.Done() {
			continue
		}
		if um.LastEvaluated != nil && !um.LastEvaluated.Before(before) {
			continue
		}
		c := cloneUserMission(um)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return lastEvaluated(out[i]).Before(lastEvaluated(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastEvaluated(um *domain.UserMission) time.Time {
	if um.LastEvaluated == nil {
		return time.Time{}
	}
	return *um.LastEvaluated
}

func (s *MemoryStore) CountUserMissions(ctx context.Context) (map[domain.UserMissionStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.UserMissionStatus]int{}
	for _, um := range s.userMissions {
		out[um.Status]++
	}
	return out, nil
}

// ---- rewards ----

func (s *MemoryStore) CreateReward(ctx context.Context, r *domain.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rewards[r.ID]; ok {
		return domain.Conflict("reward already exists")
	}
	s.rewards[r.ID] = cloneReward(*r)
	return nil
}

func (s *MemoryStore) GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return nil, domain.NotFound("reward")
	}
	out := cloneReward(r)
	return &out, nil
}

func (s *MemoryStore) ListDueRewards(ctx context.Context, now time.Time, limit int) ([]*domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reward
	for _, r := range s.rewards {
		if r.Status != domain.RewardPending || r.ExpiredAt(now) || !r.Due(now) {
			continue
		}
		c := cloneReward(r)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ExpireRewards(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.rewards {
		if r.Status == domain.RewardPending && r.ExpiredAt(now) {
			r.Status = domain.RewardExpired
			r.UpdatedAt = now
			s.rewards[id] = r
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) TransitionReward(ctx context.Context, id uuid.UUID, from, to domain.RewardStatus, u domain.RewardUpdate) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.Validation("illegal reward transition " + string(from) + " -> " + string(to))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return false, domain.NotFound("reward")
	}
	if r.Status != from {
		return false, nil
	}
	applyRewardUpdate(&r, to, u)
	s.rewards[id] = r
	return true, nil
}

func (s *MemoryStore) CreditReward(ctx context.Context, id uuid.UUID, u domain.RewardUpdate, delta domain.UserDelta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return false, domain.NotFound("reward")
	}
	if r.Status != domain.RewardProcessing {
		return false, nil
	}
	user, ok := s.users[r.Wallet]
	if !ok {
		return false, domain.NotFound("user")
	}
	applyRewardUpdate(&r, domain.RewardCompleted, u)
	s.rewards[id] = r

	user = cloneUser(user)
	delta.Apply(&user)
	s.users[r.Wallet] = user
	return true, nil
}

func applyRewardUpdate(r *domain.Reward, to domain.RewardStatus, u domain.RewardUpdate) {
	r.Status = to
	if u.SettlementToken != "" {
		r.SettlementToken = u.SettlementToken
	}
	if u.Error != "" {
		r.Error = u.Error
	}
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		r.ProcessedAt = &t
	}
	r.UpdatedAt = u.At
}

func (s *MemoryStore) ClaimReward(ctx context.Context, id uuid.UUID, wallet string, now time.Time) (*domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok || r.Wallet != wallet || !r.Claimable() {
		return nil, domain.NotFound("claimable reward")
	}
	u, ok := s.users[wallet]
	if !ok {
		return nil, domain.NotFound("user")
	}
	amount := r.Payout.Amount
	if u.PendingRewards.LessThan(amount) {
		// balance already swept by a claim-all
		amount = u.PendingRewards
	}
	u.PendingRewards = u.PendingRewards.Sub(amount)
	u.ClaimedRewards = u.ClaimedRewards.Add(amount)
	u.UpdatedAt = now
	s.users[wallet] = u

	t := now
	r.ClaimedAt = &t
	r.UpdatedAt = now
	s.rewards[id] = r

	out := cloneReward(r)
	out.Payout.Amount = amount
	return &out, nil
}

func (s *MemoryStore) ListRewards(ctx context.Context, wallet string, f domain.RewardFilter) ([]*domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reward
	for _, r := range s.rewards {
		if r.Wallet != wallet {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		c := cloneReward(r)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) RecentAirdropWallets(ctx context.Context, since time.Time) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, r := range s.rewards {
		if r.Source != domain.SourceAirdrop || r.CreatedAt.Before(since) {
			continue
		}
		if r.Status == domain.RewardPending || r.Status == domain.RewardProcessing || r.Status == domain.RewardCompleted {
			out[r.Wallet] = true
		}
	}
	return out, nil
}

func (s *MemoryStore) CountRewards(ctx context.Context) (map[domain.RewardStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.RewardStatus]int{}
	for _, r := range s.rewards {
		out[r.Status]++
	}
	return out, nil
}

// ---- leaderboard ----

func (s *MemoryStore) ReplaceRanks(ctx context.Context, entries []domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := make(map[string]bool, len(entries))
	next := make(map[string]domain.LeaderboardEntry, len(entries))
	for _, e := range entries {
		ranked[e.Wallet] = true
		e.Badges = append([]string(nil), e.Badges...)
		next[e.Wallet] = e
		if u, ok := s.users[e.Wallet]; ok {
			u.Rank = e.Rank
			s.users[e.Wallet] = u
		}
	}
	for w, u := range s.users {
		if !ranked[w] && u.Rank != 0 {
			u.Rank = 0
			s.users[w] = u
		}
	}
	s.leaderboard = next
	return nil
}

func (s *MemoryStore) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		e.Badges = append([]string(nil), e.Badges...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Entry(ctx context.Context, wallet string) (*domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.leaderboard[wallet]
	if !ok {
		return nil, domain.NotFound("leaderboard entry")
	}
	e.Badges = append([]string(nil), e.Badges...)
	return &e, nil
}

func (s *MemoryStore) LeaderboardStats(ctx context.Context) (domain.LeaderboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.LeaderboardStats
	var levels int64
	for _, u := range s.users {
		st.TotalUsers++
		st.TotalPointsDistributed += u.TotalPoints
		st.TotalMissionsCompleted += int64(u.MissionsCompleted)
		levels += int64(domain.LevelForPoints(u.TotalPoints))
	}
	if st.TotalUsers > 0 {
		st.AverageLevel = float64(levels) / float64(st.TotalUsers)
	}
	return st, nil
}

// ---- beam ----

func (s *MemoryStore) LoadBeamState(ctx context.Context) (*domain.BeamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.beam.Clone()
	return &st, nil
}

func (s *MemoryStore) SaveBeamState(ctx context.Context, prev *time.Time, next domain.BeamState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameTime(s.beam.LastBeamAt, prev) {
		return false, nil
	}
	s.beam = next.Clone()
	return true, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ---- audit ----

func (s *MemoryStore) AppendAudit(ctx context.Context, a *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, *a)
	return nil
}

// ---- copies ----

func cloneUser(u domain.User) domain.User {
	u.Badges = append([]domain.Badge(nil), u.Badges...)
	if u.ReferredBy != nil {
		r := *u.ReferredBy
		u.ReferredBy = &r
	}
	return u
}

func cloneMission(m domain.Mission) domain.Mission {
	if m.EndDate != nil {
		t := *m.EndDate
		m.EndDate = &t
	}
	return m
}

func cloneUserMission(um domain.UserMission) domain.UserMission {
	um.CompletedAt = cloneTime(um.CompletedAt)
	um.ClaimedAt = cloneTime(um.ClaimedAt)
	um.LastEvaluated = cloneTime(um.LastEvaluated)
	if um.RewardsClaimed != nil {
		s := *um.RewardsClaimed
		um.RewardsClaimed = &s
	}
	return um
}

func cloneReward(r domain.Reward) domain.Reward {
	if r.MissionID != nil {
		id := *r.MissionID
		r.MissionID = &id
	}
	r.ScheduledFor = cloneTime(r.ScheduledFor)
	r.ExpiresAt = cloneTime(r.ExpiresAt)
	r.ProcessedAt = cloneTime(r.ProcessedAt)
	r.ClaimedAt = cloneTime(r.ClaimedAt)
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
