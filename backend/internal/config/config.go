package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultListenAddr     = ":8000"
	DefaultAllowedOrigin  = "http://localhost:3000"
	DefaultAIModel        = "Instructify"
	DefaultAITimeout      = 30 * time.Second
	DefaultReadLimit      = 64 * 1024 // enough for SDP with many candidates
	DefaultSendBuffer     = 256
	DefaultChatContext    = 10
	DefaultTURNPort       = 3478
	DefaultTURNRealm      = "liveclass"
	DefaultTURNUser       = "liveclass"
	DefaultEnvFile        = ".env"
	DefaultShutdownPeriod = 5 * time.Second
)

// Config holds the relay server configuration
type Config struct {
	ListenAddr    string
	AllowedOrigin string

	// AI gateway; an empty AIBaseURL disables the language model.
	AIBaseURL string
	AIModel   string
	AITimeout time.Duration

	ReadLimit   int64
	SendBuffer  int
	ChatContext int

	TURN TURNConfig
}

// TURNConfig configures the optional embedded TURN relay
type TURNConfig struct {
	Enabled  bool
	PublicIP string
	Port     int
	Realm    string
	Username string
	Password string
}

// Options carries CLI flag overrides
type Options struct {
	ListenAddr string
	EnvFile    string
	AIBaseURL  string
	TURN       bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables, including those from the .env file
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		ListenAddr:    firstNonEmpty(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListenAddr),
		AllowedOrigin: firstNonEmpty(os.Getenv("ALLOWED_ORIGIN"), DefaultAllowedOrigin),
		AIBaseURL:     firstNonEmpty(opts.AIBaseURL, os.Getenv("AI_BASE_URL")),
		AIModel:       firstNonEmpty(os.Getenv("AI_MODEL"), DefaultAIModel),
	}

	var err error
	if cfg.AITimeout, err = envDuration("AI_TIMEOUT", DefaultAITimeout); err != nil {
		return nil, err
	}
	readLimit, err := envInt("WS_READ_LIMIT_BYTES", DefaultReadLimit)
	if err != nil {
		return nil, err
	}
	cfg.ReadLimit = int64(readLimit)
	if cfg.SendBuffer, err = envInt("WS_SEND_BUFFER", DefaultSendBuffer); err != nil {
		return nil, err
	}
	if cfg.ChatContext, err = envInt("CHAT_CONTEXT_SIZE", DefaultChatContext); err != nil {
		return nil, err
	}

	turnEnabled, err := envBool("TURN_ENABLED", false)
	if err != nil {
		return nil, err
	}
	cfg.TURN = TURNConfig{
		Enabled:  opts.TURN || turnEnabled,
		PublicIP: os.Getenv("TURN_PUBLIC_IP"),
		Realm:    firstNonEmpty(os.Getenv("TURN_REALM"), DefaultTURNRealm),
		Username: firstNonEmpty(os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		Password: os.Getenv("TURN_PASSWORD"),
	}
	if cfg.TURN.Port, err = envInt("TURN_PORT", DefaultTURNPort); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReadLimit <= 0 || c.SendBuffer <= 0 || c.ChatContext <= 0 {
		return fmt.Errorf("websocket limits and chat context must be positive")
	}
	if !c.TURN.Enabled {
		return nil
	}
	if net.ParseIP(c.TURN.PublicIP) == nil {
		return fmt.Errorf("TURN_PUBLIC_IP must be a valid IP when TURN is enabled, got %q", c.TURN.PublicIP)
	}
	if c.TURN.Password == "" {
		return fmt.Errorf("TURN_PASSWORD is required when TURN is enabled")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
