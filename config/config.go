package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Email    EmailConfig    `mapstructure:"email"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	AI       AIConfig       `mapstructure:"ai"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OAuthConfig struct {
	Google GoogleOAuthConfig `mapstructure:"google"`
}

type GoogleOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// StorageConfig 对象存储，provider 为 oss 或 s3
type StorageConfig struct {
	Provider     string    `mapstructure:"provider"`
	MaxImageSize int64     `mapstructure:"max_image_size"` // 单张图片最大字节数
	OSS          OSSConfig `mapstructure:"oss"`
	S3           S3Config  `mapstructure:"s3"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	PublicURL       string `mapstructure:"public_url"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	NotificationQueue string `mapstructure:"notification_queue"`
	MaxWorkers        int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// CreditsConfig 积分与套餐
type CreditsConfig struct {
	TimeZone         string                `mapstructure:"time_zone"`
	ResetSchedule    string                `mapstructure:"reset_schedule"` // cron 表达式，按 time_zone 解释
	SweepInProcess   bool                  `mapstructure:"sweep_in_process"`
	SweepBatchSize   int                   `mapstructure:"sweep_batch_size"`
	SweepConcurrency int                   `mapstructure:"sweep_concurrency"`
	BaseMessageCost  int                   `mapstructure:"base_message_cost"`
	PerImageCost     int                   `mapstructure:"per_image_cost"`
	MaxImages        int                   `mapstructure:"max_images"`
	PlanCycleDays    int                   `mapstructure:"plan_cycle_days"`
	Plans            map[string]PlanConfig `mapstructure:"plans"`
}

type PlanConfig struct {
	DailyCredits int   `mapstructure:"daily_credits"`
	Price        int64 `mapstructure:"price"` // 主货币单位（如 INR）
}

type PaymentConfig struct {
	Provider string         `mapstructure:"provider"` // razorpay, stripe
	Currency string         `mapstructure:"currency"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
}

type RazorpayConfig struct {
	KeyID     string `mapstructure:"key_id"`
	KeySecret string `mapstructure:"key_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("jwt.expire_hours", 168)
	v.SetDefault("storage.provider", "oss")
	v.SetDefault("storage.max_image_size", 5*1024*1024)
	v.SetDefault("queue.notification_queue", "iris:notifications")
	v.SetDefault("queue.max_workers", 2)

	v.SetDefault("credits.time_zone", "Asia/Kolkata")
	v.SetDefault("credits.reset_schedule", "0 0 * * *")
	v.SetDefault("credits.sweep_in_process", true)
	v.SetDefault("credits.sweep_batch_size", 200)
	v.SetDefault("credits.sweep_concurrency", 4)
	v.SetDefault("credits.base_message_cost", 1)
	v.SetDefault("credits.per_image_cost", 5)
	v.SetDefault("credits.max_images", 4)
	v.SetDefault("credits.plan_cycle_days", 30)

	v.SetDefault("payment.provider", "razorpay")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.razorpay.base_url", "https://api.razorpay.com")

	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.system_prompt", "You are a helpful assistant.")
	v.SetDefault("ai.timeout_seconds", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func Load(configPath string) (*Config, error) {
	// .env 中的密钥通过环境变量覆盖 yaml
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
