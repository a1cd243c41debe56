package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/store"

	"github.com/shopspring/decimal"
)

const (
	referralPoints = 250
	welcomeTTL     = 7 * 24 * time.Hour
)

var (
	welcomeAmount  = decimal.NewFromInt(5)
	referralAmount = decimal.NewFromInt(10)
)

type ActivityKind string

const (
	ActivityGamePlayed ActivityKind = "game_played"
	ActivityGameWon    ActivityKind = "game_won"
	ActivityTrade      ActivityKind = "trade"
	ActivitySocial     ActivityKind = "social"
)

// ActivityInput - событие активности пользователя
type ActivityInput struct {
	Kind          ActivityKind    `json:"kind" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	TwitterHandle string          `json:"twitter_handle"`
	DiscordID     string          `json:"discord_id"`
	TelegramID    string          `json:"telegram_id"`
}

func (in ActivityInput) delta(now time.Time) (domain.UserDelta, error) {
	d := domain.UserDelta{TouchedAt: now}
	switch in.Kind {
	case ActivityGamePlayed:
		d.GamesPlayed = 1
	case ActivityGameWon:
		d.GamesPlayed = 1
		d.GamesWon = 1
	case ActivityTrade:
		if !in.Amount.IsPositive() {
			return d, domain.Validation("trade amount must be positive")
		}
		d.TradeCount = 1
		d.TradingVolume = in.Amount
	case ActivitySocial:
		if in.TwitterHandle == "" && in.DiscordID == "" && in.TelegramID == "" {
			return d, domain.Validation("at least one social account is required")
		}
		d.TwitterHandle = in.TwitterHandle
		d.DiscordID = in.DiscordID
		d.TelegramID = in.TelegramID
	default:
		return d, domain.Validation(fmt.Sprintf("unknown activity kind %q", in.Kind))
	}
	return d, nil
}

// Users handles wallet connection and activity counters.
type Users struct {
	store    store.Store
	ledger   *Ledger
	missions *MissionTracker
	audit    *AuditService
	now      func() time.Time
	log      *slog.Logger
}

func NewUsers(st store.Store, ledger *Ledger, missions *MissionTracker, audit *AuditService) *Users {
	return &Users{
		store:    st,
		ledger:   ledger,
		missions: missions,
		audit:    audit,
		now:      time.Now,
		log:      logger.Component("users"),
	}
}

// Connect creates the user on first sight or touches LastActive. A first
// connection gets a welcome reward and links the referrer, if any.
func (s *Users) Connect(ctx context.Context, wallet, ref, ip string) (*domain.User, bool, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, false, err
	}
	now := s.now()

	u, created, err := s.store.ConnectUser(ctx, wallet, domain.DefaultUsername(wallet), now)
	if err != nil {
		return nil, false, fmt.Errorf("connect user: %w", err)
	}
	s.audit.LogWithRequest(ctx, wallet, domain.AuditActionConnect, domain.AuditCategoryAuth, ip, map[string]interface{}{"created": created})
	if !created {
		return u, false, nil
	}

	expires := now.Add(welcomeTTL)
	if _, err := s.ledger.Create(ctx, CreateRewardInput{
		Wallet:      wallet,
		Source:      domain.SourceSpecial,
		Payout:      domain.CurrencyPayout(domain.CurrencyUSDT, welcomeAmount),
		Description: "Welcome bonus",
		ExpiresAt:   &expires,
	}); err != nil {
		s.log.Error("failed to create welcome reward", "wallet", wallet, "error", err)
	}

	if ref != "" {
		if err := s.applyReferral(ctx, wallet, ref); err != nil {
			// регистрация не должна падать из-за реферала
			s.log.Warn("referral not applied", "wallet", wallet, "ref", ref, "error", err)
		}
	}
	return u, true, nil
}

func (s *Users) applyReferral(ctx context.Context, wallet, ref string) error {
	referrer, err := domain.NormalizeWallet(ref)
	if err != nil {
		return err
	}
	if referrer == wallet {
		return domain.Validation("self referral")
	}
	if _, err := s.store.GetUser(ctx, referrer); err != nil {
		return err
	}
	if err := s.store.SetReferrer(ctx, wallet, referrer); err != nil {
		return err
	}
	if _, err := s.store.ApplyUserDelta(ctx, referrer, domain.UserDelta{Referrals: 1, Points: referralPoints}); err != nil {
		return fmt.Errorf("credit referrer: %w", err)
	}
	if _, err := s.ledger.Create(ctx, CreateRewardInput{
		Wallet:      referrer,
		Source:      domain.SourceReferral,
		Payout:      domain.CurrencyPayout(domain.CurrencyUSDT, referralAmount),
		Description: fmt.Sprintf("Referral bonus for inviting %s...%s", wallet[:6], wallet[len(wallet)-4:]),
	}); err != nil {
		return fmt.Errorf("referral reward: %w", err)
	}
	s.audit.Log(ctx, referrer, domain.AuditActionReferral, domain.AuditCategoryAuth, map[string]interface{}{"invited": wallet})
	return nil
}

func (s *Users) Get(ctx context.Context, wallet string) (*domain.User, error) {
	return s.store.GetUser(ctx, wallet)
}

// RecordActivity bumps the wallet's counters and re-evaluates its open
// missions so count-based ones complete right away.
func (s *Users) RecordActivity(ctx context.Context, wallet string, in ActivityInput) (*domain.User, error) {
	d, err := in.delta(s.now())
	if err != nil {
		return nil, err
	}
	u, err := s.store.ApplyUserDelta(ctx, wallet, d)
	if err != nil {
		return nil, err
	}
	if s.missions == nil {
		return u, nil
	}

	ums, err := s.store.ListUserMissions(ctx, wallet)
	if err != nil {
		s.log.Warn("failed to list missions after activity", "wallet", wallet, "error", err)
		return u, nil
	}
	applied := false
	for _, um := range ums {
		if um.Status.Done() {
			continue
		}
		res, err := s.missions.Apply(ctx, wallet, um.MissionID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.log.Warn("mission evaluation failed", "wallet", wallet, "mission_id", um.MissionID, "error", err)
			}
			continue
		}
		applied = applied || res.Completed
	}
	if applied {
		if fresh, err := s.store.GetUser(ctx, wallet); err == nil {
			u = fresh
		}
	}
	return u, nil
}
