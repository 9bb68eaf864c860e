package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/hub"
)

// Config 存储从 .env、环境变量和可选 YAML 文件加载的配置
type Config struct {
	ServerPort      string
	AppEnv          string // development/production
	LogLevel        string
	RedisAddr       string // 为空时不启用限流、统计和 worker
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	CORSOrigin      string
	MDNSEnabled     bool
	MDNSInstance    string
	StatsSchedule   string
	MaxMessageSize  int64
	Palette         []string
}

// fileConfig 是 YAML 配置文件的结构
type fileConfig struct {
	Palette        []string `yaml:"palette"`
	MaxMessageSize int64    `yaml:"max_message_size"`
}

// RedisEnabled 表示是否配置了 Redis
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// LoadConfig 加载配置。
// envFile 为空时尝试加载当前目录的 .env (不存在则忽略)；显式指定但无法读取时返回错误。
// configFile 为空时读取 CANVAS_CONFIG_FILE。
func LoadConfig(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		ServerPort:      os.Getenv("SERVER_PORT"),
		AppEnv:          os.Getenv("APP_ENV"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:       os.Getenv("REDIS_KEY_PREFIX"),
		CORSOrigin:      os.Getenv("CORS_ALLOWED_ORIGIN"),
		MDNSInstance:    os.Getenv("MDNS_INSTANCE"),
		StatsSchedule:   os.Getenv("STATS_SCHEDULE"),
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
		MaxMessageSize:  hub.DefaultMaxMessageSize,
		Palette:         append([]string(nil), domain.DefaultPalette...),
	}

	// --- 默认值 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "canvas:"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.StatsSchedule == "" {
		cfg.StatsSchedule = "@every 1m"
	}

	// --- 数值和布尔项 ---
	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.RedisDB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if cfg.RateLimitMax, err = strconv.Atoi(v); err != nil || cfg.RateLimitMax <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_MAX %q", v)
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if cfg.RateLimitWindow, err = time.ParseDuration(v); err != nil || cfg.RateLimitWindow <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q", v)
		}
	}
	if v := os.Getenv("MDNS_ENABLED"); v != "" {
		if cfg.MDNSEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid MDNS_ENABLED %q: %w", v, err)
		}
	}

	// --- YAML 文件 ---
	if configFile == "" {
		configFile = os.Getenv("CANVAS_CONFIG_FILE")
	}
	if configFile != "" {
		if err := cfg.applyFile(configFile); err != nil {
			return nil, err
		}
	}

	// 环境变量优先于文件
	if v := os.Getenv("WS_MAX_MESSAGE_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid WS_MAX_MESSAGE_SIZE %q", v)
		}
		cfg.MaxMessageSize = size
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if len(fc.Palette) > 0 {
		c.Palette = fc.Palette
	}
	if fc.MaxMessageSize > 0 {
		c.MaxMessageSize = fc.MaxMessageSize
	}
	return nil
}
