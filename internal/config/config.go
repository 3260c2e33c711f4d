package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

const (
	// DevelopmentAnswerURL 与 ProductionAnswerURL 是未设置 ANSWER_URL 时的默认回答服务地址。
	DevelopmentAnswerURL = "https://jordanb.app.n8n.cloud/webhook-test/message-from-user"
	ProductionAnswerURL  = "https://jordanb.app.n8n.cloud/webhook/message-from-user"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Env     string
	Server  ServerConfig
	Remote  RemoteConfig
	Session SessionConfig
	Store   StoreConfig
	Symbols SymbolsConfig
	Log     LogConfig
	AI      AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	env := strings.ToLower(getEnvOrDefault("APP_ENV", "development"))
	if env != "development" && env != "production" {
		return nil, fmt.Errorf("invalid APP_ENV value %q", env)
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	remote, err := loadRemoteConfig(env)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(env)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:     env,
		Server:  server,
		Remote:  remote,
		Session: session,
		Store:   store,
		Symbols: SymbolsConfig{AssetBase: getEnvOrDefault("SYMBOL_ASSET_BASE", "/mana-symbols/")},
		Log:     logCfg,
		AI:      ai,
	}, nil
}

// Production reports whether APP_ENV selects production.
func (c *Config) Production() bool { return c.Env == "production" }

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RemoteConfig 描述回答服务 (webhook) 的地址与超时。
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

func loadRemoteConfig(env string) (RemoteConfig, error) {
	fallback := DevelopmentAnswerURL
	if env == "production" {
		fallback = ProductionAnswerURL
	}

	// 默认不设超时，由回答服务自行决定。
	timeout, err := parseDurationEnv("ANSWER_TIMEOUT", 0)
	if err != nil {
		return RemoteConfig{}, err
	}
	if timeout < 0 {
		return RemoteConfig{}, fmt.Errorf("invalid ANSWER_TIMEOUT value %q: must not be negative", os.Getenv("ANSWER_TIMEOUT"))
	}

	return RemoteConfig{
		URL:     getEnvOrDefault("ANSWER_URL", fallback),
		Timeout: timeout,
	}, nil
}

// SessionConfig 描述会话 id 的持久化方式。
type SessionConfig struct {
	StorageKey   string
	QueryParam   string
	CookieMaxAge time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	maxAge, err := parseDurationEnv("SESSION_COOKIE_MAX_AGE", 365*24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		StorageKey:   getEnvOrDefault("SESSION_STORAGE_KEY", "mtg_session_id"),
		QueryParam:   getEnvOrDefault("SESSION_QUERY_PARAM", "session_id"),
		CookieMaxAge: maxAge,
	}, nil
}

// StoreConfig 描述会话记录存储。
type StoreConfig struct {
	Driver   string
	RedisURL string
	RedisTTL time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory"))
	if driver != "memory" && driver != "redis" {
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	ttl, err := parseDurationEnv("REDIS_TTL", 24*time.Hour)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver:   driver,
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisTTL: ttl,
	}
	if cfg.Driver == "redis" && cfg.RedisURL == "" {
		return StoreConfig{}, fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
	}
	return cfg, nil
}

// SymbolsConfig 描述法术力符号图片的位置。
type SymbolsConfig struct {
	AssetBase string
}

// LogConfig 描述日志级别与格式。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig(env string) (LogConfig, error) {
	development, err := parseBoolEnv("LOG_DEVELOPMENT", env == "development")
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Development: development,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	history := 10
	if historyOverride, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			history = 1
		} else {
			history = *historyOverride
		}
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: history,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 time.ParseDuration 格式，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
