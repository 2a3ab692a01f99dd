package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgnsrekt/bet_agent/internal/refresher"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the bet agent.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Control API
	BindAddr      string
	EvalTimeoutMS int

	// Tab matching
	TabURLFilter string

	// Browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string

	// Reporting
	APIURLDefault  string
	NotifyEndpoint string
	SettingsFile   string

	// Tab refresh scheduler
	RefreshMinMinutes int
	RefreshMaxMinutes int
	// Blackout window bounds in minutes since midnight, reference timezone
	BlackoutStart int
	BlackoutEnd   int

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:          getEnvOrDefault("AGENT_BIND_ADDR", "127.0.0.1:8173"),
		EvalTimeoutMS:     getEnvIntOrDefault("AGENT_EVAL_TIMEOUT_MS", 5000),
		TabURLFilter:      getEnvOrDefault("AGENT_TAB_URL_FILTER", "sportsbook"),
		LaunchBrowser:     getEnvBoolOrDefault("AGENT_LAUNCH_BROWSER", false),
		StartURL:          getEnvOrDefault("AGENT_START_URL", ""),
		ProfileDir:        getEnvOrDefault("AGENT_PROFILE_DIR", "./chrome_profile"),
		APIURLDefault:     getEnvOrDefault("AGENT_API_URL_DEFAULT", "http://127.0.0.1:8090"),
		NotifyEndpoint:    getEnvOrDefault("AGENT_NOTIFY_ENDPOINT", ""),
		SettingsFile:      getEnvOrDefault("AGENT_SETTINGS_FILE", "./data/settings.json"),
		RefreshMinMinutes: getEnvIntOrDefault("AGENT_REFRESH_MIN_MINUTES", refresher.DefaultMinMinutes),
		RefreshMaxMinutes: getEnvIntOrDefault("AGENT_REFRESH_MAX_MINUTES", refresher.DefaultMaxMinutes),
		BlackoutStart:     getEnvClockOrDefault("AGENT_BLACKOUT_START", refresher.DefaultBlackoutStart),
		BlackoutEnd:       getEnvClockOrDefault("AGENT_BLACKOUT_END", refresher.DefaultBlackoutEnd),
		LogLevel:          strings.ToLower(getEnvOrDefault("AGENT_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("AGENT_LOG_FILE", "logs/bet_agent.log"),
	}

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.RefreshMinMinutes < 1 {
		cfg.RefreshMinMinutes = 1
	}
	if cfg.RefreshMaxMinutes < cfg.RefreshMinMinutes {
		cfg.RefreshMaxMinutes = cfg.RefreshMinMinutes
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvClockOrDefault parses an "HH:MM" clock value into minutes since
// midnight. Malformed values fall back to the default.
func getEnvClockOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	minutes, err := parseClock(val)
	if err != nil {
		slog.Warn("invalid clock value, using default", "key", key, "value", val)
		return defaultVal
	}
	return minutes
}

func parseClock(val string) (int, error) {
	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", val)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("bad hour in %q", val)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("bad minute in %q", val)
	}
	return hh*60 + mm, nil
}
