package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Orchestrator OrchestratorConfig
	Ledger       LedgerConfig
	Beam         BeamConfig
	Resilience   ResilienceConfig
	Settlement   SettlementConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	Version       string
	AllowedOrigin string
	LogLevel      string
	LogJSON       bool
	// CronSecret protects the manual orchestrator trigger
	CronSecret string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type RateLimitConfig struct {
	APILimit    int
	APIWindow   time.Duration
	AuthLimit   int
	AuthWindow  time.Duration
	ClaimLimit  int
	ClaimWindow time.Duration
}

type OrchestratorConfig struct {
	Enabled          bool
	Interval         time.Duration
	Budget           time.Duration
	MissionReserve   time.Duration
	SettleReserve    time.Duration
	BeamReserve      time.Duration
	RankReserve      time.Duration
	BeamProbability  float64
	MissionBatch     int
	MissionBudget    time.Duration
	MissionStaleness time.Duration
}

type LedgerConfig struct {
	SettleBatch   int
	SettleBudget  time.Duration
	PointsPerUnit map[string]decimal.Decimal
	MissionExpiry time.Duration
}

type BeamConfig struct {
	Cooldown          time.Duration
	ActiveWindow      time.Duration
	RecentAirdrop     time.Duration
	MinPoints         int64
	MinFraction       float64
	MaxFraction       float64
	MinRecipients     int
	MaxRecipients     int
	ScheduleSpread    time.Duration
	RewardTTL         time.Duration
	WinRateBonus      float64
	SocialBonus       float64
	RecentBonus       float64
	RecentWindow      time.Duration
	JitterMax         float64
	PointsWeightScale float64
}

type ResilienceConfig struct {
	StoreThreshold   int
	StoreCooldown    time.Duration
	NetworkThreshold int
	NetworkCooldown  time.Duration
}

type SettlementConfig struct {
	// Mode is "simulated" or "http"
	Mode    string
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Load reads .env (if any) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:          getEnv("APP_PORT", "8080"),
			Env:           getEnv("APP_ENV", "development"),
			Version:       getEnv("APP_VERSION", "dev"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			LogJSON:       getBoolEnv("LOG_JSON", false),
			CronSecret:    getEnv("CRON_SECRET", ""),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("LEADERBOARD_CACHE_TTL", 30*time.Second),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getDurationEnv("JWT_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			APILimit:    getIntEnv("API_RATE_LIMIT", 60),
			APIWindow:   getDurationEnv("API_RATE_WINDOW", time.Minute),
			AuthLimit:   getIntEnv("AUTH_RATE_LIMIT", 10),
			AuthWindow:  getDurationEnv("AUTH_RATE_WINDOW", time.Minute),
			ClaimLimit:  getIntEnv("CLAIM_RATE_LIMIT", 5),
			ClaimWindow: getDurationEnv("CLAIM_RATE_WINDOW", time.Minute),
		},
		Orchestrator: OrchestratorConfig{
			Enabled:          getBoolEnv("ORCHESTRATOR_ENABLED", true),
			Interval:         getDurationEnv("ORCHESTRATOR_INTERVAL", 5*time.Minute),
			Budget:           getDurationEnv("ORCHESTRATOR_BUDGET", 28*time.Second),
			MissionReserve:   getDurationEnv("ORCHESTRATOR_MISSION_RESERVE", 10*time.Second),
			SettleReserve:    getDurationEnv("ORCHESTRATOR_SETTLE_RESERVE", 5*time.Second),
			BeamReserve:      getDurationEnv("ORCHESTRATOR_BEAM_RESERVE", 3*time.Second),
			RankReserve:      getDurationEnv("ORCHESTRATOR_RANK_RESERVE", 2*time.Second),
			BeamProbability:  getFloatEnv("BEAM_PROBABILITY", 0.2),
			MissionBatch:     getIntEnv("MISSION_SWEEP_BATCH", 50),
			MissionBudget:    getDurationEnv("MISSION_SWEEP_BUDGET", 15*time.Second),
			MissionStaleness: getDurationEnv("MISSION_SWEEP_STALENESS", 5*time.Minute),
		},
		Ledger: LedgerConfig{
			SettleBatch:   getIntEnv("SETTLE_BATCH", 25),
			SettleBudget:  getDurationEnv("SETTLE_BUDGET", 25*time.Second),
			PointsPerUnit: getRatesEnv("POINTS_PER_UNIT", "USDT=10,UFO=1"),
			MissionExpiry: getDurationEnv("MISSION_REWARD_TTL", 30*24*time.Hour),
		},
		Beam: BeamConfig{
			Cooldown:          getDurationEnv("BEAM_COOLDOWN", time.Hour),
			ActiveWindow:      getDurationEnv("BEAM_ACTIVE_WINDOW", 24*time.Hour),
			RecentAirdrop:     getDurationEnv("BEAM_RECENT_AIRDROP", 6*time.Hour),
			MinPoints:         int64(getIntEnv("BEAM_MIN_POINTS", 100)),
			MinFraction:       getFloatEnv("BEAM_MIN_FRACTION", 0.08),
			MaxFraction:       getFloatEnv("BEAM_MAX_FRACTION", 0.20),
			MinRecipients:     getIntEnv("BEAM_MIN_RECIPIENTS", 1),
			MaxRecipients:     getIntEnv("BEAM_MAX_RECIPIENTS", 10),
			ScheduleSpread:    getDurationEnv("BEAM_SCHEDULE_SPREAD", 2*time.Hour),
			RewardTTL:         getDurationEnv("BEAM_REWARD_TTL", 48*time.Hour),
			WinRateBonus:      getFloatEnv("BEAM_WIN_RATE_BONUS", 50),
			SocialBonus:       getFloatEnv("BEAM_SOCIAL_BONUS", 25),
			RecentBonus:       getFloatEnv("BEAM_RECENT_BONUS", 30),
			RecentWindow:      getDurationEnv("BEAM_RECENT_WINDOW", 2*time.Hour),
			JitterMax:         getFloatEnv("BEAM_JITTER", 20),
			PointsWeightScale: getFloatEnv("BEAM_POINTS_SCALE", 100),
		},
		Resilience: ResilienceConfig{
			StoreThreshold:   getIntEnv("STORE_BREAKER_THRESHOLD", 3),
			StoreCooldown:    getDurationEnv("STORE_BREAKER_COOLDOWN", 30*time.Second),
			NetworkThreshold: getIntEnv("NETWORK_BREAKER_THRESHOLD", 5),
			NetworkCooldown:  getDurationEnv("NETWORK_BREAKER_COOLDOWN", 60*time.Second),
		},
		Settlement: SettlementConfig{
			Mode:    getEnv("SETTLEMENT_MODE", "simulated"),
			URL:     getEnv("SETTLEMENT_URL", ""),
			APIKey:  getEnv("SETTLEMENT_API_KEY", ""),
			Timeout: getDurationEnv("SETTLEMENT_TIMEOUT", 10*time.Second),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// MissingRequired lists required env vars that are empty. Used by the
// readiness probe as well as Validate.
func (c *Config) MissingRequired() []string {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.IsProduction() && c.Server.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if c.Settlement.Mode == "http" && c.Settlement.URL == "" {
		missing = append(missing, "SETTLEMENT_URL")
	}
	return missing
}

// Validate returns every problem at once.
func (c *Config) Validate() error {
	var errs []error

	for _, name := range c.MissingRequired() {
		errs = append(errs, fmt.Errorf("%s is required", name))
	}

	switch c.Server.Env {
	case "development", "production", "test":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}

	if c.Settlement.Mode != "simulated" && c.Settlement.Mode != "http" {
		errs = append(errs, fmt.Errorf("SETTLEMENT_MODE must be 'simulated' or 'http', got '%s'", c.Settlement.Mode))
	}

	o := c.Orchestrator
	if o.Budget <= 0 {
		errs = append(errs, errors.New("ORCHESTRATOR_BUDGET must be positive"))
	}
	if o.MissionReserve >= o.Budget || o.SettleReserve >= o.Budget || o.BeamReserve >= o.Budget {
		errs = append(errs, errors.New("orchestrator job reserves must be smaller than ORCHESTRATOR_BUDGET"))
	}
	if o.BeamProbability < 0 || o.BeamProbability > 1 {
		errs = append(errs, errors.New("BEAM_PROBABILITY must be within [0,1]"))
	}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("ORCHESTRATOR_INTERVAL must be positive"))
	}

	if c.Ledger.SettleBatch <= 0 {
		errs = append(errs, errors.New("SETTLE_BATCH must be positive"))
	}

	b := c.Beam
	if b.MinFraction <= 0 || b.MaxFraction > 1 || b.MinFraction > b.MaxFraction {
		errs = append(errs, errors.New("BEAM_MIN_FRACTION/BEAM_MAX_FRACTION must satisfy 0 < min <= max <= 1"))
	}
	if b.MinRecipients < 1 || b.MinRecipients > b.MaxRecipients {
		errs = append(errs, errors.New("BEAM_MIN_RECIPIENTS/BEAM_MAX_RECIPIENTS must satisfy 1 <= min <= max"))
	}

	if c.Resilience.StoreThreshold < 1 || c.Resilience.NetworkThreshold < 1 {
		errs = append(errs, errors.New("breaker thresholds must be at least 1"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("30s") or plain seconds ("30").
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// getRatesEnv parses "USDT=10,UFO=1" (через запятую).
func getRatesEnv(key, fallback string) map[string]decimal.Decimal {
	raw := getEnv(key, fallback)
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = d
	}
	return out
}
