// File: internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gqlharvest/internal/config"
)

// newTestManager wires a manager around a plain context so shutdown paths can
// be exercised without launching a browser.
func newTestManager() (*Manager, context.CancelFunc) {
	allocatorCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:          zap.NewNop(),
		cfg:             config.NewDefaultConfig(),
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
	}, cancel
}

func TestManager_ShutdownWithNoSessions(t *testing.T) {
	m, cancel := newTestManager()
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()

	start := time.Now()
	require.NoError(t, m.Shutdown(ctx))
	// No allocator is attached to the context, so shutdown must not sit out
	// the grace period.
	assert.Less(t, time.Since(start), time.Second)
}

func TestManager_ShutdownWaitsForActiveSessions(t *testing.T) {
	m, cancel := newTestManager()
	defer cancel()

	m.wg.Add(1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		m.wg.Done()
	}()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()

	start := time.Now()
	require.NoError(t, m.Shutdown(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestManager_ShutdownGivesUpOnStuckSessions(t *testing.T) {
	m, cancel := newTestManager()
	defer cancel()

	m.wg.Add(1) // Never released.
	defer m.wg.Done()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelCtx()

	require.NoError(t, m.Shutdown(ctx))
}
