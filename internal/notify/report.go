package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/bet_agent/internal/agent"
)

// defaultOdds is assumed when a command carries no odds (American convention).
const defaultOdds = -110

// recordPath is the tracking-service endpoint for manually recorded bets.
const recordPath = "/api/bets/record-manual"

// ReportPayload is the outbound record of a confirmed bet.
type ReportPayload struct {
	Game      string  `json:"game"`
	BetType   string  `json:"bet_type"`
	Line      string  `json:"line"`
	Odds      int     `json:"odds"`
	Wager     float64 `json:"wager"`
	BetSlipID string  `json:"bet_slip_id"`
	Notes     string  `json:"notes"`
}

// recordResponse is what the tracking service answers with.
type recordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BuildReport maps a confirmed bet onto the outbound payload, filling the
// documented defaults: line falls back to the bet type, absent odds become
// -110, absent wager stays 0.
func BuildReport(result agent.BetResult) ReportPayload {
	cmd := result.Command

	line := cmd.Line
	if line == "" {
		line = cmd.BetType
	}
	odds := cmd.Odds
	if odds == 0 {
		odds = defaultOdds
	}

	return ReportPayload{
		Game:      cmd.Game,
		BetType:   cmd.BetType,
		Line:      line,
		Odds:      odds,
		Wager:     cmd.Wager,
		BetSlipID: result.TicketID,
		Notes:     fmt.Sprintf("Placed automatically from the sportsbook session, ticket #%s", result.TicketID),
	}
}

// Forwarder delivers reports best-effort: one attempt, no retries, and every
// outcome surfaced to the user as a notification rather than an error.
type Forwarder struct {
	client         *http.Client
	notifyEndpoint string
}

func NewForwarder(client *http.Client, notifyEndpoint string) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Forwarder{client: client, notifyEndpoint: notifyEndpoint}
}

// Report posts the payload to the tracking service under the given base
// endpoint and raises the matching user notification. It never returns an
// error: delivery failure does not undo a bet that already has a ticket.
func (f *Forwarder) Report(ctx context.Context, endpoint string, payload ReportPayload) {
	if err := f.deliver(ctx, endpoint, payload); err != nil {
		slog.Warn("bet report delivery failed", "ticket_id", payload.BetSlipID, "error", err)
		f.signal(ctx, fmt.Sprintf("Bet recorded on the book but reporting failed: %v", err))
		return
	}
	slog.Info("bet report delivered", "ticket_id", payload.BetSlipID)
	f.signal(ctx, fmt.Sprintf("Bet ticket #%s recorded", payload.BetSlipID))
}

func (f *Forwarder) deliver(ctx context.Context, endpoint string, payload ReportPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+recordPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report rejected: status=%d", resp.StatusCode)
	}

	var rec recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return fmt.Errorf("decode report response: %w", err)
	}
	if !rec.Success {
		return fmt.Errorf("report not accepted: %s", rec.Message)
	}
	return nil
}

func (f *Forwarder) signal(ctx context.Context, message string) {
	if f.notifyEndpoint == "" {
		return
	}
	if err := Send(ctx, f.client, f.notifyEndpoint, message); err != nil {
		slog.Debug("user notification failed", "error", err)
	}
}
