package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"docportal/pkg/config"
)

// UploadConfig 两阶段上传的批次限制
type UploadConfig struct {
	MaxFiles    int   `yaml:"max_files"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// AuthConfig 登录限流
type AuthConfig struct {
	MaxFailedLogins int           `yaml:"max_failed_logins"`
	FailureWindow   time.Duration `yaml:"failure_window"`
}

// WorkerConfig 审计消费者
type WorkerConfig struct {
	Queue    string        `yaml:"queue"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
	RetryTTL time.Duration `yaml:"retry_ttl"`
}

// OutboxConfig outbox 扫描参数
type OutboxConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Interval   time.Duration `yaml:"interval"`
}

type Config struct {
	Env     string               `yaml:"-"`
	DB      config.DBConfig      `yaml:"db"`
	MQ      config.MQConfig      `yaml:"mq"`
	Redis   config.RedisConfig   `yaml:"redis"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Server  config.ServerConfig  `yaml:"server"`
	Storage config.StorageConfig `yaml:"storage"`
	OTel    config.OTelConfig    `yaml:"otel"`
	Upload  UploadConfig         `yaml:"upload"`
	Auth    AuthConfig           `yaml:"auth"`
	Worker  WorkerConfig         `yaml:"worker"`
	Outbox  OutboxConfig         `yaml:"outbox"`
}

// Load 读取 CONFIG_DIR（默认 config）下的 base.yaml 和 CONFIG_ENV 对应的环境文件，失败直接退出
func Load() *Config {
	cfg, err := LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom 合并配置文件，再用环境变量覆盖
func LoadFrom(env, dir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	// 环境变量覆盖（生产环境使用）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideStorageFromEnv(&cfg.Storage)
	if n := os.Getenv("UPLOAD_MAX_FILES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Upload.MaxFiles = v
		}
	}

	applyDefaults(&cfg)
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.JWT.TokenTTL <= 0 {
		cfg.JWT.TokenTTL = 24 * time.Hour
	}
	if cfg.Storage.UploadTTL <= 0 {
		cfg.Storage.UploadTTL = 10 * time.Minute
	}
	if cfg.Storage.DownloadTTL <= 0 {
		cfg.Storage.DownloadTTL = 5 * time.Minute
	}
	if cfg.Upload.MaxFiles <= 0 {
		cfg.Upload.MaxFiles = 50
	}
	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = 25 << 20
	}
	if cfg.Auth.MaxFailedLogins <= 0 {
		cfg.Auth.MaxFailedLogins = 5
	}
	if cfg.Auth.FailureWindow <= 0 {
		cfg.Auth.FailureWindow = 15 * time.Minute
	}
	if cfg.Worker.Queue == "" {
		cfg.Worker.Queue = "audit.recorded.q"
	}
	if cfg.Worker.DedupTTL <= 0 {
		cfg.Worker.DedupTTL = 24 * time.Hour
	}
	if cfg.Outbox.MaxRetries <= 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Outbox.Interval <= 0 {
		cfg.Outbox.Interval = time.Second
	}
	if cfg.Worker.RetryTTL <= 0 {
		cfg.Worker.RetryTTL = time.Hour
	}
}
