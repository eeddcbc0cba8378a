// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gqlharvest/api/schemas"
	"github.com/xkilldash9x/gqlharvest/internal/config"
)

// Session manages a single, isolated browser tab with an attached harvester.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    *config.Config

	// Context of the main browser process; the tab derives from it.
	allocatorCtx context.Context

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	harvester     *Harvester

	// onClose is set by the Manager for lifecycle bookkeeping.
	onClose func()

	isClosed bool
	mu       sync.Mutex
}

// newSession creates the session structure. Initialize must be called next.
func newSession(allocatorCtx context.Context, cfg *config.Config, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:           id,
		allocatorCtx: allocatorCtx,
		cfg:          cfg,
		logger:       logger.With(zap.String("session_id", id[:8])),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Initialize opens the browser tab and starts harvesting its traffic.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.sessionCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}

	sessionCtx, cancel := chromedp.NewContext(s.allocatorCtx)
	s.sessionCtx = sessionCtx
	s.sessionCancel = cancel
	s.harvester = NewHarvester(sessionCtx, s.logger)
	s.mu.Unlock()

	if err := s.harvester.Start(); err != nil {
		s.Close(ctx)
		return fmt.Errorf("failed to start harvester: %w", err)
	}

	s.logger.Debug("Browser session initialized.")
	return nil
}

// Navigate loads a URL and waits for the document body, bounded by the
// configured page timeout.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	s.mu.Lock()
	if s.isClosed || s.sessionCtx == nil {
		s.mu.Unlock()
		return fmt.Errorf("session is not active")
	}
	sessionCtx := s.sessionCtx
	s.mu.Unlock()

	navCtx, cancel := context.WithTimeout(sessionCtx, s.cfg.Extract.PageTimeout)
	defer cancel()

	// Bail out early if the caller's context dies mid-navigation.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.logger.Debug("Navigating.", zap.String("url", targetURL))
	err := chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.cfg.Browser.DisableCache {
				return network.SetCacheDisabled(true).Do(ctx)
			}
			return nil
		}),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", targetURL, err)
	}
	return nil
}

// Collect waits for the network to settle and returns everything the
// harvester captured. The quiet wait runs under the page timeout so a chatty
// page cannot stall collection forever.
func (s *Session) Collect(ctx context.Context) (*schemas.HarvestArtifacts, error) {
	s.mu.Lock()
	if s.isClosed || s.harvester == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is not active")
	}
	harvester := s.harvester
	s.mu.Unlock()

	idleCtx, cancel := context.WithTimeout(ctx, s.cfg.Extract.PageTimeout)
	defer cancel()

	if err := harvester.WaitNetworkIdle(idleCtx, s.cfg.Extract.QuietPeriod); err != nil {
		// A timeout here is not fatal; whatever was captured may already
		// contain the request we need.
		s.logger.Warn("Network did not go idle; collecting what was captured.", zap.Error(err))
	}

	artifacts := harvester.Stop()
	s.logger.Info("Collected session artifacts.",
		zap.Int("network_events", len(artifacts.Requests)),
		zap.Int("console_logs", len(artifacts.ConsoleLogs)),
	)
	return artifacts, nil
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	harvester := s.harvester
	cancel := s.sessionCancel
	onClose := s.onClose
	s.mu.Unlock()

	if harvester != nil {
		harvester.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if onClose != nil {
		onClose()
	}

	s.logger.Debug("Session closed.")
	return nil
}
