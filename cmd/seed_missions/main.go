package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"mission_rewards/internal/app"
	"mission_rewards/internal/config"
	"mission_rewards/internal/db"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"
	"mission_rewards/internal/repository"
	"mission_rewards/internal/service"

	"github.com/shopspring/decimal"
)

func usdt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// catalog is the launch mission set.
func catalog() []*domain.Mission {
	return []*domain.Mission{
		{
			ID:          "mission_follow_twitter",
			Title:       "Follow UFO Invasions on Twitter",
			Description: "Join our cosmic community and stay updated with the latest missions! Follow @UFOInvasions for exclusive updates.",
			Category:    domain.CategorySocial,
			Difficulty:  domain.DifficultyEasy,
			Requirement: domain.Requirement{Type: domain.ReqFollow, Target: 1},
			Reward:      domain.MissionReward{Points: 100, Currency: domain.CurrencyUSDT, Amount: usdt("0.5"), Badge: "bronze"},
		},
		{
			ID:          "mission_join_telegram",
			Title:       "Join Telegram Community",
			Description: "Connect with fellow space explorers in our Telegram group! Share strategies and get real-time updates.",
			Category:    domain.CategorySocial,
			Difficulty:  domain.DifficultyEasy,
			Requirement: domain.Requirement{Type: domain.ReqJoin, Target: 1},
			Reward:      domain.MissionReward{Points: 150, Currency: domain.CurrencyUSDT, Amount: usdt("0.75"), Badge: "bronze"},
		},
		{
			ID:          "mission_first_trade",
			Title:       "Complete Your First Trade",
			Description: "Trade any token worth $10+ on PancakeSwap to unlock cosmic trading rewards and prove your degen status!",
			Category:    domain.CategoryTrading,
			Difficulty:  domain.DifficultyMedium,
			Requirement: domain.Requirement{Type: domain.ReqTradeVolume, Target: 10},
			Reward:      domain.MissionReward{Points: 500, Currency: domain.CurrencyUSDT, Amount: usdt("2"), Badge: "silver"},
		},
		{
			ID:          "mission_hold_token",
			Title:       "Diamond Hands - Hold $UFO",
			Description: "Hold $UFO tokens for 7 days to prove your loyalty and unlock diamond status! True believers get rewarded.",
			Category:    domain.CategoryTrading,
			Difficulty:  domain.DifficultyHard,
			Requirement: domain.Requirement{Type: domain.ReqHoldTokens, Target: 168, TimeLimitHours: 168},
			Reward:      domain.MissionReward{Points: 1000, Currency: domain.CurrencyUSDT, Amount: usdt("5"), Badge: "gold"},
		},
		{
			ID:             "mission_refer_friend",
			Title:          "Refer a Friend",
			Description:    "Invite friends to join the cosmic invasion and earn referral rewards! Spread the UFO revolution.",
			Category:       domain.CategoryCommunity,
			Difficulty:     domain.DifficultyMedium,
			Requirement:    domain.Requirement{Type: domain.ReqReferral, Target: 1},
			Reward:         domain.MissionReward{Points: 300, Currency: domain.CurrencyUSDT, Amount: usdt("1.5"), Badge: "bronze"},
			MaxCompletions: 10,
		},
		{
			ID:             "mission_cosmic_master",
			Title:          "Cosmic Master - Complete 10 Missions",
			Description:    "Prove your dedication by completing 10 different missions! Become a true cosmic explorer and unlock legendary status.",
			Category:       domain.CategorySpecial,
			Difficulty:     domain.DifficultyLegendary,
			Requirement:    domain.Requirement{Type: domain.ReqMissionsCompleted, Target: 10},
			Reward:         domain.MissionReward{Points: 2000, Currency: domain.CurrencyUSDT, Amount: usdt("10"), Badge: "platinum"},
			MaxCompletions: 1,
		},
		{
			ID:          "mission_daily_checkin",
			Title:       "Daily Check-in",
			Description: "Visit the platform daily to earn bonus points and maintain your cosmic connection! Consistency is key.",
			Category:    domain.CategoryCommunity,
			Difficulty:  domain.DifficultyEasy,
			Requirement: domain.Requirement{Type: domain.ReqCheckin, Target: 1},
			Reward:      domain.MissionReward{Points: 50, Currency: domain.CurrencyUSDT, Amount: usdt("0.1")},
		},
		{
			ID:             "mission_share_invasion",
			Title:          "Share the Invasion",
			Description:    "Share UFO Invasions with your followers and spread the cosmic revolution! Help others discover the platform.",
			Category:       domain.CategorySocial,
			Difficulty:     domain.DifficultyEasy,
			Requirement:    domain.Requirement{Type: domain.ReqShare, Target: 1},
			Reward:         domain.MissionReward{Points: 200, Currency: domain.CurrencyUSDT, Amount: usdt("1"), Badge: "bronze"},
			MaxCompletions: 5,
		},
	}
}

func main() {
	wallet := flag.String("wallet", "", "also connect this wallet and print a session token")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.LogLevel, false)
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(cfg.Database.URL)
	defer pool.Close()

	st := repository.NewStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	seeded := 0
	for i, m := range catalog() {
		m.StartDate = now
		m.IsActive = true
		m.SortOrder = i
		if err := st.UpsertMission(ctx, m); err != nil {
			logger.Error("failed to seed mission", "mission_id", m.ID, "error", err)
			continue
		}
		seeded++
		logger.Info("seeded mission", "mission_id", m.ID, "points", m.Reward.Points, "amount", m.Reward.Amount.String())
	}
	logger.Info("missions seeded", "count", seeded)

	if *wallet == "" {
		return
	}

	// test user, the way the frontend would connect
	service.InitJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	svc := app.Build(cfg, st, nil, nil)
	u, created, err := svc.Users.Connect(ctx, *wallet, "", "")
	if err != nil {
		logger.Fatal("connect wallet failed", "error", err)
	}
	token, err := service.GenerateJWT(u.Wallet)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}
	logger.Info("wallet ready", "wallet", u.Wallet, "created", created)
	fmt.Println(token)
}
