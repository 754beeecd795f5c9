package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Export   ExportConfig
	Jobs     JobsConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ExportConfig controls document rendering, staging and archive output.
type ExportConfig struct {
	StagingDir       string
	OutputDir        string
	Format           string
	FontPath         string
	FontFamily       string
	InstitutionTitle string
	LogoPaths        []string
	Concurrency      int
	JobTimeout       time.Duration
	BatchTimeout     time.Duration
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// JobsConfig tunes the asynchronous export queue.
type JobsConfig struct {
	Enabled    bool
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// NotifyConfig toggles export completion events on Redis.
type NotifyConfig struct {
	Enabled bool
	Channel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Export.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects renderer settings that cannot produce readable documents.
// Records and labels are Chinese, so PDF output needs a CJK capable font.
func (c ExportConfig) Validate() error {
	switch c.Format {
	case "docx":
		return nil
	case "pdf":
		if c.FontPath == "" {
			return errors.New("EXPORT_FONT_PATH is required when EXPORT_FORMAT=pdf")
		}
		return nil
	default:
		return fmt.Errorf("unsupported EXPORT_FORMAT %q", c.Format)
	}
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	concurrency := v.GetInt("EXPORT_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 4
	}
	cfg.Export = ExportConfig{
		StagingDir:       v.GetString("EXPORT_STAGING_DIR"),
		OutputDir:        v.GetString("EXPORT_OUTPUT_DIR"),
		Format:           strings.ToLower(v.GetString("EXPORT_FORMAT")),
		FontPath:         v.GetString("EXPORT_FONT_PATH"),
		FontFamily:       v.GetString("EXPORT_FONT_FAMILY"),
		InstitutionTitle: v.GetString("EXPORT_INSTITUTION_TITLE"),
		LogoPaths:        splitAndTrim(v.GetString("EXPORT_LOGO_PATHS")),
		Concurrency:      concurrency,
		JobTimeout:       parseDuration(v.GetString("EXPORT_JOB_TIMEOUT"), 30*time.Second),
		BatchTimeout:     parseDuration(v.GetString("EXPORT_BATCH_TIMEOUT"), 5*time.Minute),
		SignedURLSecret:  v.GetString("EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EXPORT_SIGNED_URL_TTL"), time.Hour),
	}

	cfg.Jobs = JobsConfig{
		Enabled:    v.GetBool("ENABLE_EXPORT_JOBS"),
		Workers:    v.GetInt("EXPORT_JOBS_WORKERS"),
		Retries:    v.GetInt("EXPORT_JOBS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EXPORT_JOBS_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Notify = NotifyConfig{
		Enabled: v.GetBool("ENABLE_EXPORT_NOTIFICATIONS"),
		Channel: v.GetString("EXPORT_NOTIFY_CHANNEL"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "innovation_practice")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EXPORT_STAGING_DIR", "./files/plans")
	v.SetDefault("EXPORT_OUTPUT_DIR", "./files/final/export")
	v.SetDefault("EXPORT_FORMAT", "docx")
	v.SetDefault("EXPORT_FONT_PATH", "")
	v.SetDefault("EXPORT_FONT_FAMILY", "")
	v.SetDefault("EXPORT_INSTITUTION_TITLE", "创新实践课程个人报告")
	v.SetDefault("EXPORT_LOGO_PATHS", "")
	v.SetDefault("EXPORT_CONCURRENCY", 4)
	v.SetDefault("EXPORT_JOB_TIMEOUT", "30s")
	v.SetDefault("EXPORT_BATCH_TIMEOUT", "5m")
	v.SetDefault("EXPORT_SIGNED_URL_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_SIGNED_URL_TTL", "1h")

	v.SetDefault("ENABLE_EXPORT_JOBS", false)
	v.SetDefault("EXPORT_JOBS_WORKERS", 1)
	v.SetDefault("EXPORT_JOBS_RETRIES", 2)
	v.SetDefault("EXPORT_JOBS_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_EXPORT_NOTIFICATIONS", false)
	v.SetDefault("EXPORT_NOTIFY_CHANNEL", "plan-export.events")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
