// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gqlharvest/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process (or the connection to a remote one) and
// hands out isolated sessions derived from it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the browser process. All sessions derive from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// wg tracks active sessions for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches a local headless browser, or attaches to the remote
// DevTools endpoint when one is configured, and verifies it is responsive.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}

	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	if m.cfg.Browser.RemoteURL != "" {
		m.logger.Info("Attaching to remote browser.", zap.String("endpoint", m.cfg.Browser.RemoteURL))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(ctx, m.cfg.Browser.RemoteURL)
	} else {
		m.logger.Info("Initializing local browser allocator.")
		opts := m.buildAllocatorOptions()
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	// Probe with a throwaway tab to confirm the browser is alive.
	testCtx, cancelTest := context.WithTimeout(m.allocatorCtx, 30*time.Second)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser is up and responsive.")
	return nil
}

// buildAllocatorOptions assembles the flags for the local browser instance.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Later flags win, so this overrides the default that advertises
		// automation to the page.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Browser.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.Browser.IgnoreTLSErrors),
		// Keeps navigator.webdriver from flagging the visit as automated.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Browser.Headless),
		chromedp.UserAgent(m.cfg.Browser.UserAgent),
	)

	// Custom arguments from the config file.
	for _, arg := range m.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewSession creates a fully initialized browser session (tab).
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	session := newSession(m.allocatorCtx, m.cfg, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.wg.Done()
	}

	if err := session.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.logger.Debug("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown waits for active sessions to finish, then terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		// The allocator context's Done closes on cancel, before the browser
		// process is gone; the allocator's own Wait is what confirms
		// termination. Bounded so a hung process cannot wedge the exit path.
		if c := chromedp.FromContext(m.allocatorCtx); c != nil && c.Allocator != nil {
			exited := make(chan struct{})
			go func() {
				c.Allocator.Wait()
				close(exited)
			}()
			select {
			case <-exited:
			case <-time.After(shutdownGracePeriod):
				m.logger.Warn("Timed out waiting for the browser process to exit.")
			}
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
