// Package agent drives the betslip on a single sportsbook tab: it accepts a
// bet command, clicks the matching betslip entry, and after each page load
// runs one confirmation pass that activates the confirm control and pulls the
// ticket number out of the confirmation page.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/bet_agent/internal/command"
	"github.com/dgnsrekt/bet_agent/internal/slip"
)

const (
	// settleDelay runs between the bet click and the continue click, and
	// between a page load and the confirmation probe.
	defaultSettleDelay = 1500 * time.Millisecond
	// renderDelay gives the confirmation page time to render before the
	// ticket scan.
	defaultRenderDelay = 3 * time.Second
)

// Browser is the slice of tab automation the agent needs.
type Browser interface {
	InputValues(ctx context.Context, tabID string) ([]string, error)
	ClickInput(ctx context.Context, tabID string, index int) error
	ClickContinue(ctx context.Context, tabID string) (bool, error)
	ClickConfirm(ctx context.Context, tabID string) (bool, error)
	PageText(ctx context.Context, tabID string) (string, error)
}

// BetResult is the immutable record of a confirmed bet.
type BetResult struct {
	TicketID   string          `json:"ticket_id"`
	Command    command.Command `json:"command"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Agent owns the per-tab command store and the confirmation watcher.
type Agent struct {
	browser  Browser
	store    *command.Store
	onResult func(BetResult)

	settleDelay time.Duration
	renderDelay time.Duration
	now         func() time.Time
}

// New builds an agent. onResult receives every confirmed bet exactly once.
func New(browser Browser, store *command.Store, onResult func(BetResult)) *Agent {
	return &Agent{
		browser:     browser,
		store:       store,
		onResult:    onResult,
		settleDelay: defaultSettleDelay,
		renderDelay: defaultRenderDelay,
		now:         time.Now,
	}
}

// SubmitCommand stores the command for the tab and tries to click the
// matching betslip input. It answers as soon as the click lands; the
// continue control is activated in the background after a settle delay, and
// confirmation is handled separately by the page-load watcher.
//
// When no input matches, the stored command is left in place: a later page
// load inside the freshness window may still surface a confirm control.
func (a *Agent) SubmitCommand(ctx context.Context, tabID string, cmd command.Command) (bool, string) {
	stamped := a.store.Put(tabID, cmd)
	slog.Info("bet command stored", "tab_id", tabID, "game", stamped.Game, "bet_type", stamped.BetType, "odds", stamped.Odds)

	values, err := a.browser.InputValues(ctx, tabID)
	if err != nil {
		return false, "page scan failed: " + err.Error()
	}

	idx, ok := slip.FindValue(values, cmd.BetType, cmd.Odds)
	if !ok {
		slog.Warn("no betslip input matched", "tab_id", tabID, "bet_type", cmd.BetType, "odds", cmd.Odds, "inputs", len(values))
		return false, "not found"
	}

	if err := a.browser.ClickInput(ctx, tabID, idx); err != nil {
		return false, "bet click failed: " + err.Error()
	}
	slog.Info("betslip input clicked", "tab_id", tabID, "index", idx)

	go a.clickContinueLater(tabID)
	return true, "bet selected"
}

// clickContinueLater activates the continue control after the settle delay.
// Runs detached from the submit call, which has already answered.
func (a *Agent) clickContinueLater(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.settleDelay+10*time.Second)
	defer cancel()

	if !sleep(ctx, a.settleDelay) {
		return
	}
	clicked, err := a.browser.ClickContinue(ctx, tabID)
	if err != nil {
		slog.Warn("continue click failed", "tab_id", tabID, "error", err)
		return
	}
	slog.Debug("continue control", "tab_id", tabID, "clicked", clicked)
}

// HandlePageLoad is the confirmation watcher: one pass per page load.
//
// With a fresh command stored, the pass waits out the settle delay and probes
// once for the confirm control. No control means the pass ends with the
// command still armed for the next load; no polling happens, so a page that
// renders the control late misses this pass entirely. After a successful
// confirm click it waits out the render delay, scans the page text for a
// ticket number, and reports the result. A confirmation page without a
// ticket number ends the pass silently with the command retained.
func (a *Agent) HandlePageLoad(ctx context.Context, tabID string) {
	cmd, ok := a.store.Peek(tabID)
	if !ok {
		// Nothing pending, or a stale entry that Peek already discarded.
		return
	}

	if !sleep(ctx, a.settleDelay) {
		return
	}

	clicked, err := a.browser.ClickConfirm(ctx, tabID)
	if err != nil {
		slog.Warn("confirmation probe failed", "tab_id", tabID, "error", err)
		return
	}
	if !clicked {
		slog.Debug("no confirmation control on page", "tab_id", tabID)
		return
	}
	slog.Info("bet confirmed on page", "tab_id", tabID, "game", cmd.Game)

	if !sleep(ctx, a.renderDelay) {
		return
	}

	text, err := a.browser.PageText(ctx, tabID)
	if err != nil {
		slog.Warn("confirmation page read failed", "tab_id", tabID, "error", err)
		return
	}

	ticketID, found := slip.ExtractTicketID(text)
	if !found {
		slog.Warn("no ticket number on confirmation page", "tab_id", tabID)
		return
	}

	// Consume the slot atomically so overlapping passes on the same tab
	// cannot report the same command twice.
	cmd, ok = a.store.Take(tabID)
	if !ok {
		slog.Debug("command already consumed by a concurrent pass", "tab_id", tabID)
		return
	}
	result := BetResult{TicketID: ticketID, Command: cmd, CapturedAt: a.now()}
	slog.Info("bet result captured", "tab_id", tabID, "ticket_id", ticketID)
	if a.onResult != nil {
		a.onResult(result)
	}
}

// sleep waits for d, returning false when the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
