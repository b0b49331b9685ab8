package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is where the JSON configuration file is looked up when no path is given.
const DefaultPath = "config/config.json"

// AppConfig holds every configuration value. Precedence: .env -> config.json -> environment.
// Secrets never have defaults in code and must come from the file or the environment.
type AppConfig struct {
	App      AppSection      `json:"app"`
	Auth     AuthSection     `json:"auth"`
	Database DatabaseSection `json:"database"`
	Redis    RedisSection    `json:"redis"`
	SMTP     SMTPSection     `json:"smtp"`
	Storage  StorageSection  `json:"storage"`
	Log      LogSection      `json:"log"`
}

type AppSection struct {
	Port               string   `json:"port" env:"APP_PORT" env-default:"5500"`
	JWTSecret          string   `json:"jwtSecret" env:"JWT_SECRET"`
	EmailPepper        string   `json:"emailPepper" env:"EMAIL_PEPPER"`
	AllowedOrigins     []string `json:"allowedOrigins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	AdminUsernames     []string `json:"adminUsernames" env:"ADMIN_USERNAMES"`
	ModeratorUsernames []string `json:"moderatorUsernames" env:"MODERATOR_USERNAMES"`
	ShutdownTimeoutSec int      `json:"shutdownTimeoutSec" env:"SHUTDOWN_TIMEOUT_SEC" env-default:"30"`
	GinMode            string   `json:"ginMode" env:"GIN_MODE" env-default:"release"`
}

type AuthSection struct {
	EmailDomain            string `json:"emailDomain" env:"AUTH_EMAIL_DOMAIN" env-default:"islander.tamucc.edu"`
	AccessTokenTTLMinutes  int    `json:"accessTokenTtlMinutes" env:"AUTH_ACCESS_TTL_MINUTES" env-default:"15"`
	RefreshTokenTTLHours   int    `json:"refreshTokenTtlHours" env:"AUTH_REFRESH_TTL_HOURS" env-default:"168"`
	CodeTTLMinutes         int    `json:"codeTtlMinutes" env:"AUTH_CODE_TTL_MINUTES" env-default:"10"`
	EmailCooldownSec       int    `json:"emailCooldownSec" env:"AUTH_EMAIL_COOLDOWN_SEC" env-default:"60"`
	CaptchaEnabled         bool   `json:"captchaEnabled" env:"AUTH_CAPTCHA_ENABLED"`
	RegisterMaxPerIPPerDay int    `json:"registerMaxPerIpPerDay" env:"AUTH_REGISTER_MAX_PER_IP_PER_DAY" env-default:"5"`
	SecureCookies          bool   `json:"secureCookies" env:"AUTH_SECURE_COOKIES"`
}

type DatabaseSection struct {
	Driver   string `json:"driver" env:"DB_DRIVER" env-default:"mysql"`
	URI      string `json:"uri" env:"DATABASE_URI"`
	Host     string `json:"host" env:"DB_HOST" env-default:"127.0.0.1"`
	Port     string `json:"port" env:"DB_PORT" env-default:"3306"`
	User     string `json:"user" env:"DB_USER" env-default:"root"`
	Password string `json:"password" env:"DB_PASSWORD"`
	Name     string `json:"name" env:"DB_NAME" env-default:"we"`
	SSLMode  string `json:"sslMode" env:"DB_SSLMODE" env-default:"disable"`
	Path     string `json:"path" env:"DB_PATH" env-default:"we.db"`
}

type RedisSection struct {
	Enabled  bool   `json:"enabled" env:"REDIS_ENABLED"`
	Host     string `json:"host" env:"REDIS_HOST" env-default:"127.0.0.1"`
	Port     int    `json:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int    `json:"db" env:"REDIS_DB"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
}

type SMTPSection struct {
	Host     string `json:"host" env:"SMTP_HOST"`
	Port     int    `json:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `json:"username" env:"SMTP_USERNAME"`
	Password string `json:"password" env:"SMTP_PASSWORD"`
	From     string `json:"from" env:"SMTP_FROM"`
	FromName string `json:"fromName" env:"SMTP_FROM_NAME" env-default:"We"`
	TLS      bool   `json:"tls" env:"SMTP_TLS"`
}

type StorageSection struct {
	Driver        string `json:"driver" env:"STORAGE_DRIVER" env-default:"local"`
	UploadDir     string `json:"uploadDir" env:"STORAGE_UPLOAD_DIR" env-default:"static/uploads"`
	PublicBaseURL string `json:"publicBaseUrl" env:"STORAGE_PUBLIC_BASE_URL" env-default:"/static/uploads"`
	MaxImageMB    int    `json:"maxImageMb" env:"STORAGE_MAX_IMAGE_MB" env-default:"10"`
	MinioEndpoint string `json:"minioEndpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	MinioUser     string `json:"minioUser" env:"MINIO_USER"`
	MinioPassword string `json:"minioPassword" env:"MINIO_PASSWORD"`
	MinioBucket   string `json:"minioBucket" env:"MINIO_BUCKET" env-default:"we-images"`
	MinioSecure   bool   `json:"minioSecure" env:"MINIO_SECURE"`
}

type LogSection struct {
	Level      string `json:"level" env:"LOG_LEVEL" env-default:"info"`
	Path       string `json:"path" env:"LOG_PATH"`
	GinPath    string `json:"ginPath" env:"GIN_LOG_PATH" env-default:"logs/gin.log"`
	MaxSizeMB  int    `json:"maxSizeMb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `json:"maxBackups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `json:"maxAgeDays" env:"LOG_MAX_AGE_DAYS" env-default:"7"`
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// Load reads configuration from an optional .env, the JSON file at path (if it exists)
// and the environment, then validates it.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig

	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(c *AppConfig) {
	c.App.AllowedOrigins = trimList(c.App.AllowedOrigins)
	c.App.AdminUsernames = trimList(c.App.AdminUsernames)
	c.App.ModeratorUsernames = trimList(c.App.ModeratorUsernames)
	c.Auth.EmailDomain = strings.ToLower(strings.TrimSpace(c.Auth.EmailDomain))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
}

// Validate rejects configurations the service cannot start with.
func (c AppConfig) Validate() error {
	if c.App.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.App.EmailPepper == "" {
		return errors.New("EMAIL_PEPPER must be set")
	}
	if c.Auth.EmailDomain == "" {
		return errors.New("auth email domain must not be empty")
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 || c.Auth.RefreshTokenTTLHours <= 0 || c.Auth.CodeTTLMinutes <= 0 {
		return errors.New("token and code lifetimes must be positive")
	}
	return nil
}

// RoleFor returns the role configured for username, or "" when it has none.
func (c AppConfig) RoleFor(username string) string {
	for _, u := range c.App.AdminUsernames {
		if strings.EqualFold(u, username) {
			return "admin"
		}
	}
	for _, u := range c.App.ModeratorUsernames {
		if strings.EqualFold(u, username) {
			return "moderator"
		}
	}
	return ""
}

func trimList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
