// Package coordinator is the long-lived controller of the agent process: it
// routes bet commands from the control API to the right sportsbook tab,
// relays confirmed-bet results to the report forwarder, and owns the tab
// refresh scheduler.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/bet_agent/internal/agent"
	"github.com/dgnsrekt/bet_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/bet_agent/internal/command"
	"github.com/dgnsrekt/bet_agent/internal/notify"
	"github.com/dgnsrekt/bet_agent/internal/settings"
)

// reportTimeout bounds the detached report delivery after a confirmed bet.
const reportTimeout = 30 * time.Second

// Tabs is the slice of tab discovery the coordinator needs.
type Tabs interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	FirstTab(ctx context.Context) (cdpcontrol.TabInfo, bool, error)
	ReloadMatching(ctx context.Context) (int, error)
}

// Submitter delivers a command to one tab's page agent.
type Submitter interface {
	SubmitCommand(ctx context.Context, tabID string, cmd command.Command) (bool, string)
}

// Reporter delivers a confirmed-bet report, best-effort.
type Reporter interface {
	Report(ctx context.Context, endpoint string, payload notify.ReportPayload)
}

// SettingsStore exposes the persisted report endpoint configuration.
type SettingsStore interface {
	Get() settings.Settings
	Put(settings.Settings) error
	APIURL() string
}

// Scheduler is the refresh timer lifecycle owned by the coordinator.
type Scheduler interface {
	Start(ctx context.Context)
}

// PlaceResult answers a place-bet trigger.
type PlaceResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Ack answers a bet-complete event. Always received: delivery of the report
// is decoupled from this acknowledgement.
type Ack struct {
	Received bool `json:"received"`
}

// TelegramStatus mirrors the tracking service's telegram configuration probe.
type TelegramStatus struct {
	Configured  bool   `json:"configured"`
	BotUsername string `json:"bot_username,omitempty"`
}

type Coordinator struct {
	tabs      Tabs
	agent     Submitter
	forwarder Reporter
	settings  SettingsStore
	scheduler Scheduler
	client    *http.Client
}

func New(tabs Tabs, submitter Submitter, forwarder Reporter, store SettingsStore, scheduler Scheduler) *Coordinator {
	return &Coordinator{
		tabs:      tabs,
		agent:     submitter,
		forwarder: forwarder,
		settings:  store,
		scheduler: scheduler,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Start arms the refresh scheduler. Called once at process start.
func (c *Coordinator) Start(ctx context.Context) {
	if c.scheduler != nil {
		c.scheduler.Start(ctx)
	}
}

// PlaceBet forwards the command to the first open sportsbook tab and relays
// the page agent's answer. Domain failures come back as an unsuccessful
// result, not an error; errors are reserved for invalid requests and broken
// browser plumbing.
func (c *Coordinator) PlaceBet(ctx context.Context, cmd command.Command) (PlaceResult, error) {
	if strings.TrimSpace(cmd.Game) == "" {
		return PlaceResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "game is required"}
	}
	if strings.TrimSpace(cmd.BetType) == "" {
		return PlaceResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "bet_type is required"}
	}

	tab, found, err := c.tabs.FirstTab(ctx)
	if err != nil {
		return PlaceResult{}, err
	}
	if !found {
		return PlaceResult{
			Success: false,
			Message: "No sportsbook tab is open. Open the sportsbook in the browser and log in first.",
		}, nil
	}

	slog.Info("placing bet", "tab_id", tab.TabID, "game", cmd.Game, "bet_type", cmd.BetType, "odds", cmd.Odds, "wager", cmd.Wager)
	accepted, reason := c.agent.SubmitCommand(ctx, tab.TabID, cmd)
	if !accepted {
		return PlaceResult{Success: false, Message: reason}, nil
	}
	return PlaceResult{Success: true, Message: reason}, nil
}

// OnBetComplete handles a confirmed bet from a page agent. The report is
// posted in the background; the acknowledgement never waits for it.
func (c *Coordinator) OnBetComplete(result agent.BetResult) Ack {
	slog.Info("bet complete", "ticket_id", result.TicketID, "game", result.Command.Game)

	endpoint := c.settings.APIURL()
	payload := notify.BuildReport(result)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		c.forwarder.Report(ctx, endpoint, payload)
	}()

	return Ack{Received: true}
}

// ListTabs returns the open sportsbook tabs.
func (c *Coordinator) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return c.tabs.ListTabs(ctx)
}

// RefreshTabs reloads all open sportsbook tabs immediately.
func (c *Coordinator) RefreshTabs(ctx context.Context) (int, error) {
	return c.tabs.ReloadMatching(ctx)
}

// GetSettings returns the persisted configuration.
func (c *Coordinator) GetSettings() settings.Settings {
	return c.settings.Get()
}

// PutSettings stores the configuration.
func (c *Coordinator) PutSettings(s settings.Settings) error {
	if strings.TrimSpace(s.APIURL) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "api_url is required"}
	}
	return c.settings.Put(s)
}

// TelegramStatus proxies the tracking service's telegram configuration probe.
func (c *Coordinator) TelegramStatus(ctx context.Context) (TelegramStatus, error) {
	url := c.settings.APIURL() + "/api/telegram/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TelegramStatus{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return TelegramStatus{}, fmt.Errorf("telegram status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return TelegramStatus{}, fmt.Errorf("telegram status: HTTP %d", resp.StatusCode)
	}

	var status TelegramStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return TelegramStatus{}, fmt.Errorf("telegram status: %w", err)
	}
	return status, nil
}
