package config

import (
	"testing"

	"github.com/dgnsrekt/bet_agent/internal/refresher"
)

// clearAgentEnv blanks every config key so tests see the built-in defaults
// regardless of the developer's shell environment.
func clearAgentEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CHROMIUM_CDP_ADDRESS", "CHROMIUM_CDP_PORT",
		"AGENT_BIND_ADDR", "AGENT_EVAL_TIMEOUT_MS", "AGENT_TAB_URL_FILTER",
		"AGENT_LAUNCH_BROWSER", "AGENT_START_URL", "AGENT_PROFILE_DIR",
		"AGENT_API_URL_DEFAULT", "AGENT_NOTIFY_ENDPOINT", "AGENT_SETTINGS_FILE",
		"AGENT_REFRESH_MIN_MINUTES", "AGENT_REFRESH_MAX_MINUTES",
		"AGENT_BLACKOUT_START", "AGENT_BLACKOUT_END",
		"AGENT_LOG_LEVEL", "AGENT_LOG_FILE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "22:45", want: 22*60 + 45},
		{in: "05:30", want: 5*60 + 30},
		{in: "0:00", want: 0},
		{in: "23:59", want: 23*60 + 59},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1245", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseClock(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseClock(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAgentEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL = %q", cfg.CDPURL())
	}
	if cfg.BindAddr != "127.0.0.1:8173" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.BlackoutStart != refresher.DefaultBlackoutStart || cfg.BlackoutEnd != refresher.DefaultBlackoutEnd {
		t.Fatalf("blackout = %d..%d", cfg.BlackoutStart, cfg.BlackoutEnd)
	}
	if cfg.RefreshMinMinutes != refresher.DefaultMinMinutes || cfg.RefreshMaxMinutes != refresher.DefaultMaxMinutes {
		t.Fatalf("refresh = %d..%d", cfg.RefreshMinMinutes, cfg.RefreshMaxMinutes)
	}
}

func TestLoadClampsInvalidRanges(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("AGENT_EVAL_TIMEOUT_MS", "10")
	t.Setenv("AGENT_REFRESH_MIN_MINUTES", "0")
	t.Setenv("AGENT_REFRESH_MAX_MINUTES", "-5")
	t.Setenv("AGENT_BLACKOUT_START", "99:99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("EvalTimeoutMS = %d", cfg.EvalTimeoutMS)
	}
	if cfg.RefreshMinMinutes != 1 || cfg.RefreshMaxMinutes != 1 {
		t.Fatalf("refresh = %d..%d", cfg.RefreshMinMinutes, cfg.RefreshMaxMinutes)
	}
	if cfg.BlackoutStart != 22*60+45 {
		t.Fatalf("BlackoutStart = %d", cfg.BlackoutStart)
	}
}
