package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/bet_agent/internal/command"
)

type fakeBrowser struct {
	mu             sync.Mutex
	values         []string
	clickedInputs  []int
	continueClicks int
	continueCh     chan struct{}
	confirmPresent bool
	confirmBarrier *sync.WaitGroup
	confirmClicks  int
	pageText       string
	textReads      int
}

func (f *fakeBrowser) InputValues(ctx context.Context, tabID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values, nil
}

func (f *fakeBrowser) ClickInput(ctx context.Context, tabID string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clickedInputs = append(f.clickedInputs, index)
	return nil
}

func (f *fakeBrowser) ClickContinue(ctx context.Context, tabID string) (bool, error) {
	f.mu.Lock()
	f.continueClicks++
	ch := f.continueCh
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	return true, nil
}

func (f *fakeBrowser) ClickConfirm(ctx context.Context, tabID string) (bool, error) {
	f.mu.Lock()
	f.confirmClicks++
	present := f.confirmPresent
	barrier := f.confirmBarrier
	f.mu.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return present, nil
}

func (f *fakeBrowser) PageText(ctx context.Context, tabID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textReads++
	return f.pageText, nil
}

func (f *fakeBrowser) snapshot() fakeBrowser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeBrowser{
		clickedInputs:  append([]int(nil), f.clickedInputs...),
		continueClicks: f.continueClicks,
		confirmClicks:  f.confirmClicks,
		textReads:      f.textReads,
	}
}

func newTestAgent(browser Browser, store *command.Store, onResult func(BetResult)) *Agent {
	a := New(browser, store, onResult)
	a.settleDelay = time.Millisecond
	a.renderDelay = time.Millisecond
	return a
}

func TestPlaceAndConfirmEndToEnd(t *testing.T) {
	browser := &fakeBrowser{
		values:         []string{"spread -3.5 -110", "220.5 -105"},
		continueCh:     make(chan struct{}),
		confirmPresent: true,
		pageText:       "Thank you!\nTicket# 99102\nGood luck.",
	}
	store := command.NewStore()
	var results []BetResult
	a := newTestAgent(browser, store, func(r BetResult) { results = append(results, r) })

	cmd := command.Command{Game: "Lakers vs Nets", BetType: "Over 220.5", Odds: -105, Wager: 50}
	accepted, reason := a.SubmitCommand(context.Background(), "tab1", cmd)
	if !accepted {
		t.Fatalf("SubmitCommand rejected: %s", reason)
	}

	select {
	case <-browser.continueCh:
	case <-time.After(2 * time.Second):
		t.Fatal("continue control was never clicked")
	}

	a.HandlePageLoad(context.Background(), "tab1")

	got := browser.snapshot()
	if len(got.clickedInputs) != 1 || got.clickedInputs[0] != 1 {
		t.Fatalf("clicked inputs = %v; want [1]", got.clickedInputs)
	}
	if got.confirmClicks != 1 {
		t.Fatalf("confirm clicks = %d; want 1", got.confirmClicks)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d; want 1", len(results))
	}
	if results[0].TicketID != "99102" {
		t.Fatalf("ticket id = %q; want %q", results[0].TicketID, "99102")
	}
	if results[0].Command.Game != "Lakers vs Nets" {
		t.Fatalf("result command game = %q", results[0].Command.Game)
	}
	if _, ok := store.Peek("tab1"); ok {
		t.Fatal("command slot must be empty after the result was reported")
	}
}

func TestReportedPassIsIdempotent(t *testing.T) {
	browser := &fakeBrowser{
		values:         []string{"220.5 -105"},
		confirmPresent: true,
		pageText:       "Ticket# 4821931",
	}
	store := command.NewStore()
	results := 0
	a := newTestAgent(browser, store, func(BetResult) { results++ })

	a.SubmitCommand(context.Background(), "tab1", command.Command{BetType: "Over 220.5", Odds: -105})
	a.HandlePageLoad(context.Background(), "tab1")
	if results != 1 {
		t.Fatalf("results after first load = %d; want 1", results)
	}

	before := browser.snapshot()
	a.HandlePageLoad(context.Background(), "tab1")
	after := browser.snapshot()

	if results != 1 {
		t.Fatalf("results after second load = %d; want 1", results)
	}
	if after.confirmClicks != before.confirmClicks {
		t.Fatal("second page-load pass must not touch the page")
	}
}

func TestOverlappingLoadsReportOnce(t *testing.T) {
	// A confirm click navigates the page, and a scheduled reload can land at
	// the same moment, so two watcher passes may run concurrently on one tab.
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	browser := &fakeBrowser{
		values:         []string{"220.5 -105"},
		confirmPresent: true,
		confirmBarrier: barrier,
		pageText:       "Ticket# 99102",
	}
	store := command.NewStore()
	var mu sync.Mutex
	results := 0
	a := newTestAgent(browser, store, func(BetResult) {
		mu.Lock()
		results++
		mu.Unlock()
	})

	a.SubmitCommand(context.Background(), "tab1", command.Command{Game: "Lakers vs Nets", BetType: "Over 220.5", Odds: -105})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.HandlePageLoad(context.Background(), "tab1")
		}()
	}
	wg.Wait()

	mu.Lock()
	got := results
	mu.Unlock()
	if got != 1 {
		t.Fatalf("one stored command reported %d times; want exactly 1", got)
	}
	if _, ok := store.Peek("tab1"); ok {
		t.Fatal("command slot must be empty after the result was reported")
	}
}

func TestStaleCommandNeverActivatesDOM(t *testing.T) {
	browser := &fakeBrowser{confirmPresent: true, pageText: "Ticket# 1"}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := command.NewStoreWithClock(func() time.Time { return now })
	a := newTestAgent(browser, store, func(BetResult) { t.Fatal("stale command must not produce a result") })

	store.Put("tab1", command.Command{BetType: "Over 220.5", Odds: -105})
	now = now.Add(command.TTL) // age >= 60s

	a.HandlePageLoad(context.Background(), "tab1")

	if got := browser.snapshot(); got.confirmClicks != 0 || got.textReads != 0 {
		t.Fatalf("stale command touched the page: %+v", &got)
	}
	if _, ok := store.Peek("tab1"); ok {
		t.Fatal("stale command must be discarded")
	}
}

func TestConfirmationMissedStaysArmed(t *testing.T) {
	browser := &fakeBrowser{values: []string{"220.5 -105"}, confirmPresent: false}
	store := command.NewStore()
	results := 0
	a := newTestAgent(browser, store, func(BetResult) { results++ })

	a.SubmitCommand(context.Background(), "tab1", command.Command{BetType: "Over 220.5", Odds: -105})

	// Single-shot probe finds nothing; the command stays armed.
	a.HandlePageLoad(context.Background(), "tab1")
	if results != 0 {
		t.Fatal("no result expected while unconfirmed")
	}
	if _, ok := store.Peek("tab1"); !ok {
		t.Fatal("command must stay stored while unconfirmed")
	}

	// The control shows up on a later load inside the freshness window.
	browser.mu.Lock()
	browser.confirmPresent = true
	browser.pageText = "Your Ticket#: 55 was confirmed"
	browser.mu.Unlock()

	a.HandlePageLoad(context.Background(), "tab1")
	if results != 1 {
		t.Fatalf("results = %d; want 1 after the control appeared", results)
	}
}

func TestTicketMissingIsSilent(t *testing.T) {
	browser := &fakeBrowser{
		values:         []string{"220.5 -105"},
		confirmPresent: true,
		pageText:       "Your ticket is being processed",
	}
	store := command.NewStore()
	a := newTestAgent(browser, store, func(BetResult) { t.Fatal("no result without a ticket number") })

	a.SubmitCommand(context.Background(), "tab1", command.Command{BetType: "Over 220.5", Odds: -105})
	a.HandlePageLoad(context.Background(), "tab1")

	if got := browser.snapshot(); got.textReads != 1 {
		t.Fatalf("text reads = %d; want 1", got.textReads)
	}
}

func TestSubmitCommandNotFound(t *testing.T) {
	browser := &fakeBrowser{values: []string{"219.5 -110", "moneyline"}}
	store := command.NewStore()
	a := newTestAgent(browser, store, nil)

	accepted, reason := a.SubmitCommand(context.Background(), "tab1", command.Command{BetType: "Over 220.5", Odds: -105})
	if accepted {
		t.Fatal("expected rejection")
	}
	if reason != "not found" {
		t.Fatalf("reason = %q; want %q", reason, "not found")
	}
	if got := browser.snapshot(); len(got.clickedInputs) != 0 {
		t.Fatalf("no input should have been clicked, got %v", got.clickedInputs)
	}
	// The command stays stored for a later confirmation pass.
	if _, ok := store.Peek("tab1"); !ok {
		t.Fatal("command must remain stored after a failed scan")
	}
}
