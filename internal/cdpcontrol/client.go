package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client tracks sportsbook tabs (browser targets whose URL contains the
// configured filter) and runs betslip automation on them. Sessions are
// attached eagerly so that Page.loadEventFired is received for every tracked
// tab, which is what drives the confirmation pass after navigation.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu           sync.Mutex
	cdp          *rawCDP
	tabs         map[target.ID]*tabSession
	order        []target.ID // /json/list order, first tab wins
	sessionToTab map[string]target.ID
	unwatchLoad  func()

	loadMu sync.Mutex
	onLoad func(tabID string)

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:       cdpURL,
		tabFilter:    strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout:  evalTimeout,
		tabs:         make(map[target.ID]*tabSession),
		sessionToTab: make(map[string]target.ID),
		tabLocks:     make(map[string]*sync.Mutex),
	}
}

// SetLoadHandler installs the callback invoked whenever a tracked tab finishes
// a page load. The callback runs on the CDP read loop; handlers that block
// must hand off to their own goroutine.
func (c *Client) SetLoadHandler(fn func(tabID string)) {
	c.loadMu.Lock()
	c.onLoad = fn
	c.loadMu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	err := c.connectLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.attachTracked(ctx)
	return nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL, "tab_filter", c.tabFilter)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	c.unwatchLoad = c.cdp.registerEventHandler("Page.loadEventFired", c.handleLoadEvent)

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.unwatchLoad != nil {
		c.unwatchLoad()
		c.unwatchLoad = nil
	}
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, session.sessionID)
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.order = nil
	c.sessionToTab = make(map[string]target.ID)
}

func (c *Client) handleLoadEvent(sessionID string, _ json.RawMessage) {
	c.mu.Lock()
	targetID, ok := c.sessionToTab[sessionID]
	c.mu.Unlock()
	if !ok {
		return
	}

	c.loadMu.Lock()
	fn := c.onLoad
	c.loadMu.Unlock()
	if fn == nil {
		return
	}
	slog.Debug("cdpcontrol page load", "tab_id", targetID)
	fn(string(targetID))
}

// ListTabs returns all tracked sportsbook tabs in browser order.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tabs := make([]TabInfo, 0, len(c.order))
	for _, id := range c.order {
		if s := c.tabs[id]; s != nil {
			tabs = append(tabs, s.info)
		}
	}
	return tabs, nil
}

// FirstTab returns the first open sportsbook tab, if any.
func (c *Client) FirstTab(ctx context.Context) (TabInfo, bool, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return TabInfo{}, false, err
	}
	if len(tabs) == 0 {
		return TabInfo{}, false, nil
	}
	return tabs[0], true, nil
}

// ReloadTab reloads a single tracked tab.
func (c *Client) ReloadTab(ctx context.Context, tabID string) error {
	session, _, err := c.resolveTabSession(ctx, tabID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return err
	}
	if err := cdp.reloadPage(ctx, sessionID, false); err != nil {
		return newError(CodeEvalFailure, "reload failed", err)
	}
	return nil
}

// ReloadMatching reloads every tracked sportsbook tab and returns how many
// were reloaded. Zero open tabs is a no-op, not an error.
func (c *Client) ReloadMatching(ctx context.Context) (int, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return 0, err
	}

	reloaded := 0
	for _, t := range tabs {
		if err := c.ReloadTab(ctx, t.TabID); err != nil {
			slog.Warn("cdpcontrol tab reload failed", "tab_id", t.TabID, "error", err)
			continue
		}
		reloaded++
	}
	return reloaded, nil
}

// --- Betslip page operations ---

// InputValues returns the visible values of all input elements on the tab's
// page, in DOM order.
func (c *Client) InputValues(ctx context.Context, tabID string) ([]string, error) {
	var out struct {
		Values []string `json:"values"`
	}
	if err := c.evalOnTab(ctx, tabID, jsListInputValues(), &out); err != nil {
		return nil, err
	}
	if out.Values == nil {
		return []string{}, nil
	}
	return out.Values, nil
}

// ClickInput activates the input element at the given DOM-order index.
func (c *Client) ClickInput(ctx context.Context, tabID string, index int) error {
	if index < 0 {
		return newError(CodeValidation, "input index must be >= 0", nil)
	}
	var out struct {
		Status string `json:"status"`
	}
	return c.evalOnTab(ctx, tabID, jsClickInput(index), &out)
}

// ClickContinue activates the betslip "Continue" control when present.
// Returns false (without error) when no such control exists on the page.
func (c *Client) ClickContinue(ctx context.Context, tabID string) (bool, error) {
	var out struct {
		Clicked bool `json:"clicked"`
	}
	if err := c.evalOnTab(ctx, tabID, jsClickLabeledInput(continueLabel), &out); err != nil {
		return false, err
	}
	return out.Clicked, nil
}

// ClickConfirm activates the bet confirmation control when present.
func (c *Client) ClickConfirm(ctx context.Context, tabID string) (bool, error) {
	var out struct {
		Clicked bool `json:"clicked"`
	}
	if err := c.evalOnTab(ctx, tabID, jsClickLabeledInput(confirmLabel), &out); err != nil {
		return false, err
	}
	return out.Clicked, nil
}

// PageText returns the full visible text of the tab's page.
func (c *Client) PageText(ctx context.Context, tabID string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.evalOnTab(ctx, tabID, jsPageText(), &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// --- Tab/session plumbing ---

func (c *Client) evalOnTab(ctx context.Context, tabID, js string, out any) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(CodeTabNotFound, "tab id is required", nil)
	}

	lock := c.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	// First attempt.
	session, _, err := c.resolveTabSession(ctx, tabID)
	if err == nil {
		err = c.evalOnSession(ctx, session, tabID, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("cdpcontrol eval retry after transient failure", "tab_id", tabID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("cdpcontrol tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
		}
	}

	session, _, err = c.resolveTabSession(ctx, tabID)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, tabID, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, tabID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "tab_id", tabID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()
		c.mu.Lock()
		delete(c.sessionToTab, sessionID)
		c.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the tab, attaching and enabling
// the Page domain if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, tabID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, tabID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	if err := cdp.enablePageDomain(ctx, sid); err != nil {
		slog.Warn("cdpcontrol Page.enable failed", "tab_id", tabID, "error", err)
	}
	session.sessionID = sid

	c.mu.Lock()
	c.sessionToTab[sid] = target.ID(tabID)
	c.mu.Unlock()

	slog.Debug("cdpcontrol session attached", "tab_id", tabID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveTabSession(ctx context.Context, tabID string) (*tabSession, TabInfo, error) {
	session, info, found := c.lookupTabSession(tabID)
	if found {
		return session, info, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, TabInfo{}, err
	}

	session, info, found = c.lookupTabSession(tabID)
	if found {
		return session, info, nil
	}

	return nil, TabInfo{}, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupTabSession(tabID string) (*tabSession, TabInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(tabID)]
	if session == nil {
		return nil, TabInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		// Attach to any newly discovered tabs so their load events flow.
		c.attachTracked(ctx)
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

// attachTracked eagerly attaches sessions for all tracked tabs.
func (c *Client) attachTracked(ctx context.Context) {
	c.mu.Lock()
	cdp := c.cdp
	ids := make([]target.ID, len(c.order))
	copy(ids, c.order)
	c.mu.Unlock()
	if cdp == nil {
		return
	}

	for _, id := range ids {
		session, _, ok := c.lookupTabSession(string(id))
		if !ok {
			continue
		}
		if _, err := c.ensureSession(ctx, cdp, session, string(id)); err != nil {
			slog.Warn("cdpcontrol eager attach failed", "tab_id", id, "error", err)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]TabInfo)
	order := make([]target.ID, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		expected[t.TargetID] = TabInfo{
			TabID: string(t.TargetID),
			URL:   t.URL,
			Title: t.Title,
		}
		order = append(order, t.TargetID)
	}

	for targetID, session := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		if session != nil {
			session.mu.Lock()
			if session.sessionID != "" {
				delete(c.sessionToTab, session.sessionID)
			}
			session.mu.Unlock()
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}
	c.order = order

	// Prune tab locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[target.ID(id)]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(tabID string) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[tabID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[tabID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
