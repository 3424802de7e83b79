package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数（およびCONFIG_FILEで指定したYAML）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret   string
	JWTTTL      time.Duration
	LedgerCheck bool

	// Credentials
	BcryptCost     int
	FieldCipherKey []byte

	// OTP
	OTPTTL    time.Duration
	OTPLength int

	// Redis（空の場合は台帳キャッシュを使用しない）
	RedisURL       string
	LedgerCacheTTL time.Duration

	// Object storage
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PublicBaseURL   string
	S3AccessKeyID     string
	S3SecretAccessKey string
	ImageMaxBytes     int64
	ImageMaxDimension int
	ImageMaxPixels    int64

	// Mail
	MailAPIURL    string
	MailAPIKey    string
	MailFromEmail string
	MailFromName  string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Cleanup
	TokenRetentionDays int
	CleanupInterval    time.Duration

	// Pagination
	DefaultPageSize int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// source は環境変数を優先し、未設定の場合はYAMLファイルの値を返す。
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

// Load は環境変数からConfigを読み込む。
// CONFIG_FILEが設定されている場合はYAMLファイルを既定値として読み込み、環境変数で上書きする。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		src.file = values
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = src.lookup("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = src.lookup("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	rawKey := src.lookup("FIELD_CIPHER_KEY")
	if rawKey == "" {
		missing = append(missing, "FIELD_CIPHER_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("invalid FIELD_CIPHER_KEY: %w", err)
	}
	cfg.FieldCipherKey = key

	// Optional fields with defaults
	cfg.JWTTTL = src.getDuration("JWT_TTL", 2*time.Hour)
	cfg.LedgerCheck = src.getBool("AUTH_LEDGER_CHECK", true)
	cfg.BcryptCost = src.getInt("BCRYPT_COST", 10)
	cfg.OTPTTL = src.getDuration("OTP_TTL", 10*time.Minute)
	cfg.OTPLength = src.getInt("OTP_LENGTH", 10)
	cfg.RedisURL = src.getString("REDIS_URL", "")
	cfg.LedgerCacheTTL = src.getDuration("LEDGER_CACHE_TTL", 5*time.Minute)
	cfg.S3Bucket = src.getString("S3_BUCKET", "")
	cfg.S3Region = src.getString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = src.getString("S3_ENDPOINT", "")
	cfg.S3PublicBaseURL = src.getString("S3_PUBLIC_BASE_URL", "")
	cfg.S3AccessKeyID = src.getString("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = src.getString("S3_SECRET_ACCESS_KEY", "")
	cfg.ImageMaxBytes = src.getInt64("IMAGE_MAX_BYTES", 5242880)
	cfg.ImageMaxDimension = src.getInt("IMAGE_MAX_DIMENSION", 1600)
	cfg.ImageMaxPixels = src.getInt64("IMAGE_MAX_PIXELS", 40000000)
	cfg.MailAPIURL = src.getString("MAIL_API_URL", "https://api.brevo.com/v3/smtp/email")
	cfg.MailAPIKey = src.getString("MAIL_API_KEY", "")
	cfg.MailFromEmail = src.getString("MAIL_FROM_EMAIL", "")
	cfg.MailFromName = src.getString("MAIL_FROM_NAME", "estatehub")
	cfg.RateLimitGeneral = src.getInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = src.getInt("RATE_LIMIT_AUTH", 10)
	cfg.TokenRetentionDays = src.getInt("TOKEN_RETENTION_DAYS", 7)
	cfg.CleanupInterval = src.getDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.DefaultPageSize = src.getInt("DEFAULT_PAGE_SIZE", 2)
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = src.getString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// loadFile はYAMLファイルを読み込み、キーを環境変数名とするフラットなマップを返す。
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

// decodeKey は16進またはBase64で表現された32バイトの鍵をデコードする。
func decodeKey(raw string) ([]byte, error) {
	if b, err := hex.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("key must be 32 bytes encoded as hex or base64")
}

func (s source) getString(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getInt64(key string, defaultVal int64) int64 {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getBool(key string, defaultVal bool) bool {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
