package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// Config aggregates runtime configuration for the bot process.
type Config struct {
	App      AppConfig
	Bot      BotConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Pending  PendingConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Ops      OpsConfig
}

// AppConfig controls the HTTP server hosting the webhook and ops API.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// BotConfig holds the platform credential and admin channel list.
type BotConfig struct {
	Token          string
	APIBaseURL     string
	WebhookSecret  string
	AdminChatIDs   []int64
	SendTimeoutSec int
	ProfilePath    string
}

// StoreConfig selects and parameterizes the ticket store backend.
type StoreConfig struct {
	Backend string // "file" or "postgres"
	DataDir string
}

// PostgresConfig holds DB connection values for the postgres backend.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// PendingConfig selects the staged-reply pending store backend.
type PendingConfig struct {
	Backend string // "memory" or "redis"
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// OpsConfig defines operator API authentication parameters.
type OpsConfig struct {
	JWTSecret       string
	PasswordHash    string
	TokenTTLMinutes int
}

// Load reads configuration from environment variables, applying
// defaults where possible. A missing bot token or empty admin list is
// fatal.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return nil, apperrors.NewConfigMissing("BOT_TOKEN")
	}

	admins, err := parseAdminIDs(os.Getenv("ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, apperrors.NewConfigMissing("ADMIN_CHAT_IDS")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Bot: BotConfig{
			Token:          token,
			APIBaseURL:     getEnv("PLATFORM_API_BASE", "https://api.telegram.org"),
			WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
			AdminChatIDs:   admins,
			SendTimeoutSec: getEnvAsInt("PLATFORM_SEND_TIMEOUT_SECONDS", 30),
			ProfilePath:    getEnv("BOT_PROFILE_PATH", "profile.json"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "file"),
			DataDir: getEnv("DATA_DIR", "data"),
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns: int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
		},
		Pending: PendingConfig{
			Backend: getEnv("PENDING_BACKEND", "memory"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Ops: OpsConfig{
			JWTSecret:       getEnv("OPS_JWT_SECRET", "dev-secret"),
			PasswordHash:    os.Getenv("OPS_PASSWORD_HASH"),
			TokenTTLMinutes: getEnvAsInt("OPS_TOKEN_TTL_MINUTES", 60),
		},
	}

	if cfg.Store.Backend == "postgres" && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return nil, apperrors.NewConfigMissing("POSTGRES_DSN")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SendTimeout returns the outbound platform-call timeout.
func (b BotConfig) SendTimeout() time.Duration {
	if b.SendTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.SendTimeoutSec) * time.Second
}

// IsAdmin checks membership in the configured operator allow-list.
func (b BotConfig) IsAdmin(id int64) bool {
	for _, admin := range b.AdminChatIDs {
		if admin == id {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// FAQButton is one navigation button inside the FAQ tree.
type FAQButton struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// FAQNode is a single FAQ menu screen.
type FAQNode struct {
	Text    string      `json:"text"`
	Buttons []FAQButton `json:"buttons,omitempty"`
}

// BotProfile is the conversational surface loaded from a JSON file:
// canned quick replies, the FAQ tree, and the purchase key list.
type BotProfile struct {
	QuickReplies map[string]string  `json:"quick_replies"`
	FAQ          map[string]FAQNode `json:"faq"`
	PurchaseKeys []string           `json:"purchase_keys"`
}

// LoadProfile reads and decodes the bot profile file.
func LoadProfile(path string) (*BotProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigMissing(fmt.Sprintf("bot profile %s (%v)", path, err))
	}
	var profile BotProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode bot profile %s: %w", path, err)
	}
	if profile.QuickReplies == nil {
		profile.QuickReplies = map[string]string{}
	}
	if profile.FAQ == nil {
		profile.FAQ = map[string]FAQNode{}
	}
	return &profile, nil
}

// QuickReplyKeys lists configured quick-reply identifiers, for usage
// hints in admin command errors.
func (p *BotProfile) QuickReplyKeys() []string {
	keys := make([]string, 0, len(p.QuickReplies))
	for k := range p.QuickReplies {
		keys = append(keys, k)
	}
	return keys
}
