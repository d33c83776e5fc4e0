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

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Relay  RelayConfig
	Usage  UsageConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Relay:  relay,
		Usage:  UsageConfig{DBPath: strings.TrimSpace(os.Getenv("USAGE_DB_PATH"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// MissingCredentialMessage explains how to fix an unconfigured model.
const MissingCredentialMessage = "model credential not configured: set ARK_API_KEY (or ARK_ACCESS_KEY and ARK_SECRET_KEY) and ARK_MODEL in the environment or .env file"

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s", MissingCredentialMessage)
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
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

	modelID := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelID == "" {
		modelID = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       modelID,
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// LimitMode selects how per-session time and message limits apply.
type LimitMode string

const (
	// LimitModeRequest enforces only the limits a request carries.
	LimitModeRequest LimitMode = "request"
	// LimitModeStrict always enforces limits, filling in defaults.
	LimitModeStrict LimitMode = "strict"
	// LimitModeOff ignores limits entirely.
	LimitModeOff LimitMode = "off"
)

// RelayConfig 描述会话中继的行为。
type RelayConfig struct {
	ModelTimeout        time.Duration
	LimitMode           LimitMode
	DefaultTimeLimit    float64 // minutes
	DefaultMessageLimit int
	FallbackName        string // empty uses the prompt builder default
	ReplyMaxWords       int
	ClosingMessage      string
	SessionIdleTTL      time.Duration // 0 disables expiry
	SweepInterval       time.Duration
}

// DefaultClosingMessage is the canned reply once a session is finished.
const DefaultClosingMessage = "It was really nice chatting with you, but I have to go now. Take care!"

// DefaultRelayConfig returns the relay settings used when nothing is overridden.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ModelTimeout:        30 * time.Second,
		LimitMode:           LimitModeRequest,
		DefaultTimeLimit:    60,
		DefaultMessageLimit: 1,
		ClosingMessage:      DefaultClosingMessage,
		SweepInterval:       time.Minute,
	}
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := DefaultRelayConfig()

	timeout, err := parseDurationEnv("RELAY_MODEL_TIMEOUT", cfg.ModelTimeout)
	if err != nil {
		return RelayConfig{}, err
	}
	if timeout <= 0 {
		return RelayConfig{}, fmt.Errorf("invalid RELAY_MODEL_TIMEOUT value %q: must be positive", timeout)
	}
	cfg.ModelTimeout = timeout

	switch mode := LimitMode(strings.ToLower(getEnvOrDefault("RELAY_LIMIT_MODE", string(cfg.LimitMode)))); mode {
	case LimitModeRequest, LimitModeStrict, LimitModeOff:
		cfg.LimitMode = mode
	default:
		return RelayConfig{}, fmt.Errorf("invalid RELAY_LIMIT_MODE value %q: want request, strict or off", mode)
	}

	if timeLimit, err := parseOptionalFloatEnv("RELAY_DEFAULT_TIME_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if timeLimit != nil {
		cfg.DefaultTimeLimit = *timeLimit
	}

	if messageLimit, err := parseOptionalIntEnv("RELAY_DEFAULT_MESSAGE_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if messageLimit != nil {
		cfg.DefaultMessageLimit = *messageLimit
	}

	if maxWords, err := parseOptionalIntEnv("RELAY_REPLY_MAX_WORDS"); err != nil {
		return RelayConfig{}, err
	} else if maxWords != nil {
		cfg.ReplyMaxWords = *maxWords
	}

	cfg.FallbackName = getEnvOrDefault("RELAY_PERSONA_FALLBACK_NAME", cfg.FallbackName)
	cfg.ClosingMessage = getEnvOrDefault("RELAY_CLOSING_MESSAGE", cfg.ClosingMessage)

	ttl, err := parseDurationEnv("RELAY_SESSION_IDLE_TTL", 0)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.SessionIdleTTL = ttl

	interval, err := parseDurationEnv("RELAY_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return RelayConfig{}, err
	}
	if interval <= 0 {
		return RelayConfig{}, fmt.Errorf("invalid RELAY_SWEEP_INTERVAL value %q: must be positive", interval)
	}
	cfg.SweepInterval = interval

	return cfg, nil
}

// UsageConfig 描述用量账本配置，DBPath 为空时不落盘。
type UsageConfig struct {
	DBPath string
}

// Enabled reports whether the usage ledger should be opened.
func (c UsageConfig) Enabled() bool {
	return c.DBPath != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
