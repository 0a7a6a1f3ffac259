package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       DBConfig
	Storage  StorageConfig
	JWT      JWTConfig
	Server   ServerConfig
	SSO      SSOConfig
	Push     PushConfig
	Events   EventsConfig
	Realtime RealtimeConfig
	Pool     PoolConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// StorageConfig points at an S3-compatible endpoint. In production that is Cloudflare R2.
type StorageConfig struct {
	Driver       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	UseSSL       bool
	ImageBucket  string
	MediaBucket  string
	EventBucket  string
	SignedURLTTL time.Duration
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
	RefreshTTL      time.Duration
}

type ServerConfig struct {
	Port           string
	FrontendURL    string
	AllowedOrigins string
	ServiceKey     string
	BodyLimitMB    int
	LogLevel       string
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type SSOConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	Icon            string
	Badge           string
	TTLSeconds      int
}

// Enabled reports whether VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

type EventsConfig struct {
	QueueSize      int
	ExportInterval time.Duration
}

type RealtimeConfig struct {
	RedisURL string
	Channel  string
}

type PoolConfig struct {
	ChatroomTTL       time.Duration
	InvitationTTL     time.Duration
	InvitationCodeLen int
}

func Load() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "shelivery"),
			Password: getEnv("DB_PASSWORD", "shelivery_secret"),
			Name:     getEnv("DB_NAME", "shelivery"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", "r2"),
			Endpoint:     getEnv("R2_ENDPOINT", "localhost:9000"),
			AccessKey:    getEnv("R2_ACCESS_KEY_ID", "shelivery"),
			SecretKey:    getEnv("R2_SECRET_ACCESS_KEY", "shelivery_secret"),
			Region:       getEnv("R2_REGION", "auto"),
			UseSSL:       getEnvAsBool("R2_USE_SSL", false),
			ImageBucket:  getEnv("R2_IMAGE_BUCKET", "shelivery-images"),
			MediaBucket:  getEnv("R2_MEDIA_BUCKET", "chat-media"),
			EventBucket:  getEnv("R2_EVENT_BUCKET", "shelivery-events"),
			SignedURLTTL: getEnvAsDuration("R2_SIGNED_URL_TTL", time.Hour),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 1),
			RefreshTTL:      getEnvAsDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
			ServiceKey:     getEnv("SERVICE_KEY", ""),
			BodyLimitMB:    getEnvAsInt("BODY_LIMIT_MB", 25),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		SSO: SSOConfig{
			Google: OAuthProviderConfig{
				Enabled:      getEnvAsBool("GOOGLE_OAUTH_ENABLED", false),
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/oauth/google/callback"),
				Scopes:       getEnvAsList("GOOGLE_SCOPES", "openid,email,profile"),
			},
			GitHub: OAuthProviderConfig{
				Enabled:      getEnvAsBool("GITHUB_OAUTH_ENABLED", false),
				ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GITHUB_REDIRECT_URL", "http://localhost:8080/api/auth/oauth/github/callback"),
				Scopes:       getEnvAsList("GITHUB_SCOPES", "read:user,user:email"),
			},
		},
		Push: PushConfig{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subject:         getEnv("VAPID_SUBJECT", "mailto:hello@shelivery.com"),
			Icon:            getEnv("PUSH_ICON", "/icons/icon-192x192.png"),
			Badge:           getEnv("PUSH_BADGE", "/icons/badge-72x72.png"),
			TTLSeconds:      getEnvAsInt("PUSH_TTL_SECONDS", 86400),
		},
		Events: EventsConfig{
			QueueSize:      getEnvAsInt("EVENT_QUEUE_SIZE", 1000),
			ExportInterval: getEnvAsDuration("EVENT_EXPORT_INTERVAL", time.Hour),
		},
		Realtime: RealtimeConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			Channel:  getEnv("REALTIME_CHANNEL", "shelivery:notifications"),
		},
		Pool: PoolConfig{
			ChatroomTTL:       getEnvAsDuration("POOL_CHATROOM_TTL", 48*time.Hour),
			InvitationTTL:     getEnvAsDuration("INVITATION_TTL", 7*24*time.Hour),
			InvitationCodeLen: getEnvAsInt("INVITATION_CODE_LENGTH", 8),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
