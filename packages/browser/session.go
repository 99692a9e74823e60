package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"commentbot/packages/config"
	"commentbot/packages/domain"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Config carries everything a session needs; the manager injects it so no
// browser state is ambient.
type Config struct {
	Headless      bool
	UserDataDir   string
	CookieFile    string
	LoginEmail    string
	LoginPassword string
	FeedURL       string
	Retries       int
	Backoff       time.Duration
	PageTimeout   time.Duration
	Locators      map[string][]config.Locator
	Pacing        config.Pacing
}

// deniedMarkers indicate the feed loaded but the account cannot see the
// target content. A generic logged-in check misses these.
var deniedMarkers = []string{
	"content isn't available",
	"you must log in",
	"log in to continue",
	"access denied",
	"join this group to",
}

// Session is one role-bound browser instance with its own profile directory.
type Session struct {
	role        domain.SessionRole
	cfg         Config
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	rng         *rand.Rand

	mu     sync.Mutex
	authed bool

	// opMu serializes operations on the session's main tab: the supervisor's
	// probes must not navigate while the role's own operation is mid-flight.
	opMu sync.Mutex

	// Per-task state, owned by the single posting consumer.
	tabCtx    context.Context
	tabCancel context.CancelFunc
	boxLoc    config.Locator
}

func newSession(parent context.Context, role domain.SessionRole, cfg Config) (*Session, error) {
	profileDir := filepath.Join(cfg.UserDataDir, string(role))
	if err := os.MkdirAll(profileDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create profile dir for %s: %w", role, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserDataDir(profileDir),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		role:        role,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	// Starting the browser process up front surfaces launch failures here
	// instead of on the first operation.
	startCtx, startCancel := context.WithTimeout(ctx, cfg.PageTimeout)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.Close()
		return nil, domain.WrapFault(domain.FaultTransient, "browser process failed to start", err)
	}
	return s, nil
}

func (s *Session) Role() domain.SessionRole { return s.role }

func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	s.cancel()
	s.allocCancel()
}

// Alive is the weak liveness probe: the browser process answers at all.
func (s *Session) Alive(ctx context.Context) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	probeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	var one int
	return chromedp.Run(probeCtx, chromedp.Evaluate("1", &one)) == nil
}

// ContentReachable is the strong probe: it loads the target feed and checks
// for access-denied markers, because a session can be logged in yet still
// lack access to the specific target group.
func (s *Session) ContentReachable(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()

	var bodyText string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(s.cfg.FeedURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
	)
	if err != nil {
		return domain.WrapFault(domain.FaultTransient, "feed load failed", err)
	}
	lowered := strings.ToLower(bodyText)
	for _, marker := range deniedMarkers {
		if strings.Contains(lowered, marker) {
			s.setAuthed(false)
			return domain.NewFault(domain.FaultUnauthenticated, "feed shows access marker: "+marker)
		}
	}
	return nil
}

func (s *Session) setAuthed(v bool) {
	s.mu.Lock()
	s.authed = v
	s.mu.Unlock()
}

func (s *Session) Authed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// Authenticate establishes a logged-in state: imported cookies when a cookie
// file is configured, interactive credentials otherwise.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.cfg.CookieFile != "" {
		if err := s.importCookieFile(s.cfg.CookieFile); err != nil {
			return err
		}
		if err := s.ContentReachable(ctx); err == nil {
			s.setAuthed(true)
			return nil
		}
		// Cookies stale; fall through to credentials.
	}
	if s.cfg.LoginEmail == "" && s.cfg.LoginPassword == "" {
		return domain.NewFault(domain.FaultUnauthenticated, "no cookie file and no credentials configured")
	}
	if err := s.loginWithCredentials(); err != nil {
		return err
	}
	if err := s.ContentReachable(ctx); err != nil {
		return err
	}
	s.setAuthed(true)
	return nil
}

// loginWithCredentials distinguishes the full login form (email and password
// fields) from the lighter re-confirm checkpoint (password field only) by
// which fields are actually present.
func (s *Session) loginWithCredentials() error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(s.cfg.FeedURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return domain.WrapFault(domain.FaultTransient, "login page load failed", err)
	}

	emailLoc, haveEmail := resolve(runCtx, s.cfg.Locators[ElemLoginEmail])
	passLoc, havePass := resolve(runCtx, s.cfg.Locators[ElemLoginPassword])

	var actions []chromedp.Action
	switch {
	case haveEmail && havePass:
		actions = append(actions,
			chromedp.SendKeys(emailLoc.Value, s.cfg.LoginEmail, queryOption(emailLoc.By)),
			chromedp.SendKeys(passLoc.Value, s.cfg.LoginPassword, queryOption(passLoc.By)),
		)
	case havePass:
		// Password re-confirm checkpoint.
		actions = append(actions,
			chromedp.SendKeys(passLoc.Value, s.cfg.LoginPassword, queryOption(passLoc.By)),
		)
	default:
		return domain.NewFault(domain.FaultUnauthenticated, "no login form fields located")
	}

	if submitLoc, ok := resolve(runCtx, s.cfg.Locators[ElemLoginSubmit]); ok {
		actions = append(actions, chromedp.Click(submitLoc.Value, queryOption(submitLoc.By)))
	} else {
		actions = append(actions, chromedp.KeyEvent(kb.Enter))
	}
	actions = append(actions, chromedp.Sleep(3*time.Second))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return domain.WrapFault(domain.FaultUnauthenticated, "credential login failed", err)
	}
	return nil
}

type cookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

func (s *Session) importCookieFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}
	var records []cookieRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range records {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure).
				WithExpires(&exp).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// ExportCookies hands the session's cookie jar to another session, letting
// the message role bootstrap identity without a second login.
func (s *Session) ExportCookies(ctx context.Context) ([]*network.Cookie, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies from %s session: %w", s.role, err)
	}
	return cookies, nil
}

func (s *Session) ImportCookies(ctx context.Context, cookies []*network.Cookie) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure).
				WithExpires(&exp).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to import cookies into %s session: %w", s.role, err)
	}
	s.setAuthed(true)
	return nil
}

// LoadFeed renders the feed, scrolls a few screens to force lazy content in,
// and returns the page HTML for the scanner to parse.
func (s *Session) LoadFeed(ctx context.Context, url string) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", domain.WrapFault(domain.FaultTransient, "feed render failed", err)
	}
	return html, nil
}

// --- Posting ops driven by the worker, one task at a time ---

// BeginTask opens an isolated tab for the task so the scanning surface stays
// undisturbed. The returned restore closes the tab.
func (s *Session) BeginTask(ctx context.Context) (func(), error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, domain.WrapFault(domain.FaultTransient, "failed to open posting tab", err)
	}
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.boxLoc = config.Locator{}
	return func() {
		tabCancel()
		s.tabCtx = nil
		s.tabCancel = nil
	}, nil
}

func (s *Session) taskCtx() (context.Context, error) {
	if s.tabCtx == nil {
		return nil, domain.NewFault(domain.FaultSessionUnavailable, "no posting tab open")
	}
	return s.tabCtx, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tab, s.cfg.PageTimeout)
	defer cancel()
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return domain.WrapFault(domain.FaultTransient, "navigation failed", err)
	}
	return nil
}

// EnsureAuthenticated fails fast when the current page shows a logged-out or
// access-denied state.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	if !s.Authed() {
		return domain.NewFault(domain.FaultUnauthenticated, "session never completed auth")
	}
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tab, 10*time.Second)
	defer cancel()

	var bodyText string
	if err := chromedp.Run(runCtx, chromedp.Text("body", &bodyText, chromedp.ByQuery)); err != nil {
		return domain.WrapFault(domain.FaultTransient, "auth probe failed", err)
	}
	lowered := strings.ToLower(bodyText)
	for _, marker := range deniedMarkers {
		if strings.Contains(lowered, marker) {
			s.setAuthed(false)
			return domain.NewFault(domain.FaultUnauthenticated, "page shows marker: "+marker)
		}
	}
	return nil
}

// FocusCommentBox walks the comment-input locator chain and focuses the first
// hit. Exhausting the chain is a locator fault for the whole task.
func (s *Session) FocusCommentBox(ctx context.Context) error {
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}
	loc, ok := resolve(tab, s.cfg.Locators[ElemCommentBox])
	if !ok {
		return domain.NewFault(domain.FaultLocatorNotFound, "comment input not found by any locator")
	}
	runCtx, cancel := context.WithTimeout(tab, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Click(loc.Value, queryOption(loc.By))); err != nil {
		return domain.WrapFault(domain.FaultLocatorNotFound, "comment input did not accept focus", err)
	}
	s.boxLoc = loc
	return nil
}

// TypeComment executes the human pacing plan against the focused input.
func (s *Session) TypeComment(ctx context.Context, text string) error {
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}
	plan := BuildTypingPlan(text, s.cfg.Pacing, s.rng)
	for _, step := range plan {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step.Delay):
		}
		for i := 0; i < step.Backspaces; i++ {
			if err := chromedp.Run(tab, chromedp.KeyEvent(kb.Backspace)); err != nil {
				return domain.WrapFault(domain.FaultTransient, "typing failed", err)
			}
		}
		if step.Keys == "" {
			continue
		}
		if err := chromedp.Run(tab, chromedp.KeyEvent(step.Keys)); err != nil {
			return domain.WrapFault(domain.FaultTransient, "typing failed", err)
		}
	}
	return nil
}

func (s *Session) AttachImages(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}
	loc, ok := resolve(tab, s.cfg.Locators[ElemImageInput])
	if !ok {
		return domain.NewFault(domain.FaultLocatorNotFound, "image input not found by any locator")
	}
	runCtx, cancel := context.WithTimeout(tab, s.cfg.PageTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.SetUploadFiles(loc.Value, paths, queryOption(loc.By))); err != nil {
		return domain.WrapFault(domain.FaultTransient, "image attach failed", err)
	}
	return nil
}

// Submit commits the comment via three tiers: the commit key, then a located
// submit control, then a synthesized low-level key event.
func (s *Session) Submit(ctx context.Context) error {
	tab, err := s.taskCtx()
	if err != nil {
		return err
	}

	if err := chromedp.Run(tab, chromedp.KeyEvent(kb.Enter)); err == nil && s.committed(tab) {
		return nil
	}

	if loc, ok := resolve(tab, s.cfg.Locators[ElemSubmitButton]); ok {
		if err := chromedp.Run(tab, chromedp.Click(loc.Value, queryOption(loc.By))); err == nil && s.committed(tab) {
			return nil
		}
	}

	err = chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		down := input.DispatchKeyEvent(input.KeyDown).
			WithKey("Enter").WithCode("Enter").WithText("\r").
			WithWindowsVirtualKeyCode(13).WithNativeVirtualKeyCode(13)
		if err := down.Do(ctx); err != nil {
			return err
		}
		up := input.DispatchKeyEvent(input.KeyUp).
			WithKey("Enter").WithCode("Enter").
			WithWindowsVirtualKeyCode(13).WithNativeVirtualKeyCode(13)
		return up.Do(ctx)
	}))
	if err == nil && s.committed(tab) {
		return nil
	}
	return domain.NewFault(domain.FaultSubmissionRejected, "all submit tiers exhausted")
}

// committed checks whether the comment input emptied out or was removed,
// which the platform does on a successful post. A failed probe proves
// nothing about the submit and never counts as committed.
func (s *Session) committed(tab context.Context) bool {
	if s.boxLoc.Value == "" {
		return false
	}
	runCtx, cancel := context.WithTimeout(tab, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Sleep(1500*time.Millisecond)); err != nil {
		return false
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx,
		chromedp.Nodes(s.boxLoc.Value, &nodes, queryOption(s.boxLoc.By), chromedp.AtLeast(0)),
	); err != nil {
		return false
	}
	if len(nodes) == 0 {
		// Input removed after submit.
		return true
	}

	var value string
	if err := chromedp.Run(runCtx, chromedp.Text(s.boxLoc.Value, &value, queryOption(s.boxLoc.By))); err != nil {
		return false
	}
	return strings.TrimSpace(value) == ""
}
