// File: internal/browser/harvester.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gqlharvest/api/schemas"
)

// Harvester listens to browser events on a single tab. It records every
// outgoing request plus console output, which is all the hash scan needs;
// response bodies are never fetched.
type Harvester struct {
	logger *zap.Logger

	// The context for the browser tab this harvester is attached to.
	sessionCtx context.Context
	// A separate context for the listener so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	// -- Data storage and synchronization --
	requests    []schemas.NetworkRequest
	inflight    map[network.RequestID]struct{}
	consoleLogs []schemas.ConsoleLog
	lock        sync.RWMutex

	isStarted bool
}

// NewHarvester creates a harvester for a specific session.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger) *Harvester {
	return &Harvester{
		sessionCtx:  sessionCtx,
		logger:      logger.Named("harvester"),
		requests:    make([]schemas.NetworkRequest, 0),
		inflight:    make(map[network.RequestID]struct{}),
		consoleLogs: make([]schemas.ConsoleLog, 0),
	}
}

// Start enables the CDP domains and kicks off the event listener.
func (h *Harvester) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the session, so if the session dies, the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)

	go h.listen()

	err := chromedp.Run(h.sessionCtx,
		network.Enable(),
		runtime.Enable(),
		log.Enable(),
	)
	if err != nil {
		h.cancelListener()
		return fmt.Errorf("failed to enable CDP domains: %w", err)
	}

	h.isStarted = true
	h.logger.Debug("Harvester started and listening for events.")
	return nil
}

// listen receives and dispatches CDP events until the listener is cancelled.
func (h *Harvester) listen() {
	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		// -- Network events --
		case *network.EventRequestWillBeSent:
			h.handleRequestWillBeSent(e)
		case *network.EventLoadingFinished:
			h.handleLoadingSettled(e.RequestID)
		case *network.EventLoadingFailed:
			h.handleLoadingSettled(e.RequestID)

		// -- Console and runtime events --
		case *runtime.EventConsoleAPICalled:
			h.handleConsoleAPICalled(e)
		case *log.EventEntryAdded:
			h.handleLogEntryAdded(e)
		case *runtime.EventExceptionThrown:
			h.handleExceptionThrown(e)
		}
	})
}

// Stop halts event collection and returns everything gathered so far.
func (h *Harvester) Stop() *schemas.HarvestArtifacts {
	h.lock.Lock()
	if h.isStarted {
		if h.cancelListener != nil {
			h.cancelListener()
			h.cancelListener = nil
		}
		h.isStarted = false
	}
	h.lock.Unlock()

	h.logger.Debug("Harvester stopped.")
	return h.artifacts()
}

// WaitNetworkIdle polls until there have been no in-flight requests for the
// quiet period. This is what lets the watchlist page finish firing its
// GraphQL XHRs before the traffic is scanned.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	// Check more often than the quiet period; NewTicker panics on a
	// non-positive interval, so floor it for pathologically small periods.
	tick := quietPeriod / 2
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("WaitNetworkIdle aborted.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflightCount := len(h.inflight)
			h.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
				h.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", inflightCount))
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// -- Event handlers --

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}

	ts := time.Now()
	if e.WallTime != nil {
		ts = e.WallTime.Time()
	}

	captured := schemas.NetworkRequest{
		EventType:    schemas.EventTypeRequest,
		URL:          e.Request.URL,
		Method:       e.Request.Method,
		DocumentURL:  e.DocumentURL,
		ResourceType: string(e.Type),
		Headers:      flattenHeaders(e.Request.Headers),
		Timestamp:    ts,
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	// Redirect legs reuse the request ID; each leg is captured separately.
	h.inflight[e.RequestID] = struct{}{}
	h.requests = append(h.requests, captured)
}

func (h *Harvester) handleLoadingSettled(id network.RequestID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.inflight, id)
}

// -- Console and log handlers --

func (h *Harvester) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	var textBuilder strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			textBuilder.WriteString(" ")
		}
		// Console arguments arrive as remote objects; prefer the JSON value,
		// then the description.
		var val interface{}
		if arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil {
			textBuilder.WriteString(fmt.Sprintf("%v", val))
		} else if arg.Description != "" {
			textBuilder.WriteString(arg.Description)
		} else {
			textBuilder.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}

	h.appendConsoleLog(schemas.ConsoleLog{
		Type:      string(e.Type),
		Text:      textBuilder.String(),
		Source:    "console-api",
		Timestamp: eventTime(e.Timestamp),
	})
}

func (h *Harvester) handleLogEntryAdded(e *log.EventEntryAdded) {
	if e.Entry == nil {
		return
	}
	h.appendConsoleLog(schemas.ConsoleLog{
		Type:      string(e.Entry.Level),
		Text:      e.Entry.Text,
		Source:    string(e.Entry.Source),
		Timestamp: eventTime(e.Entry.Timestamp),
	})
}

func (h *Harvester) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	// The description usually carries the stack trace.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}

	h.appendConsoleLog(schemas.ConsoleLog{
		Type:      "exception",
		Text:      text,
		Source:    "runtime",
		Timestamp: eventTime(e.Timestamp),
	})
}

// eventTime converts a CDP timestamp, tolerating events that omit it.
func eventTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}

func (h *Harvester) appendConsoleLog(entry schemas.ConsoleLog) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.consoleLogs = append(h.consoleLogs, entry)
}

// artifacts snapshots the collected data.
func (h *Harvester) artifacts() *schemas.HarvestArtifacts {
	h.lock.RLock()
	defer h.lock.RUnlock()

	out := &schemas.HarvestArtifacts{
		Requests:    make([]schemas.NetworkRequest, len(h.requests)),
		ConsoleLogs: make([]schemas.ConsoleLog, len(h.consoleLogs)),
	}
	copy(out.Requests, h.requests)
	copy(out.ConsoleLogs, h.consoleLogs)
	return out
}

// flattenHeaders converts CDP headers to a flat string map. Multi-value
// headers arrive newline-joined; only the first value is kept.
func flattenHeaders(headers network.Headers) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	flat := make(map[string]string, len(headers))
	for name, value := range headers {
		if valStr, ok := value.(string); ok {
			flat[name] = strings.Split(valStr, "\n")[0]
		}
	}
	return flat
}
