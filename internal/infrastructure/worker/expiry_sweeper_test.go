package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSweeperService struct {
	mu       sync.Mutex
	calls    int
	expired  int
	sweepErr error
}

func (m *mockSweeperService) ExpireStale(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	return m.expired, nil
}

func (m *mockSweeperService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestExpirySweeperSweepsImmediatelyOnStart(t *testing.T) {
	svc := &mockSweeperService{expired: 2}
	sweeper := NewExpirySweeper(svc, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sweeper.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sweeper.Stop())

	// The hour-long ticker never fired, so the one call is the startup sweep.
	assert.Equal(t, 1, svc.callCount())
}

func TestExpirySweeperSweepsOnInterval(t *testing.T) {
	svc := &mockSweeperService{}
	sweeper := NewExpirySweeper(svc, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sweeper.Start(ctx))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, sweeper.Stop())

	assert.Greater(t, svc.callCount(), 2)
}

func TestExpirySweeperKeepsRunningAfterSweepError(t *testing.T) {
	svc := &mockSweeperService{sweepErr: errors.New("db locked")}
	sweeper := NewExpirySweeper(svc, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sweeper.Start(ctx))
	time.Sleep(70 * time.Millisecond)
	require.NoError(t, sweeper.Stop())

	assert.Greater(t, svc.callCount(), 1, "failed sweeps must not stop the loop")
}

func TestExpirySweeperStopsOnContextCancel(t *testing.T) {
	svc := &mockSweeperService{}
	sweeper := NewExpirySweeper(svc, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sweeper.Start(ctx))
	time.Sleep(30 * time.Millisecond)

	cancel()
	time.Sleep(60 * time.Millisecond)
	after := svc.callCount()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, after, svc.callCount(), "no sweeps after context cancellation")
	require.NoError(t, sweeper.Stop())
}

func TestExpirySweeperRequiresService(t *testing.T) {
	sweeper := NewExpirySweeper(nil, time.Minute, zap.NewNop())
	assert.Error(t, sweeper.Start(context.Background()))
}

func TestExpirySweeperDefaultsInterval(t *testing.T) {
	sweeper := NewExpirySweeper(&mockSweeperService{}, 0, zap.NewNop())
	assert.Equal(t, 5*time.Minute, sweeper.interval)
}

type stubWorker struct {
	name     string
	startErr error
	mu       sync.Mutex
	started  bool
	stopped  bool
}

func (w *stubWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *stubWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	return nil
}

func (w *stubWorker) Name() string { return w.name }

func TestManagerStartsAndStopsWorkers(t *testing.T) {
	m := NewManager(zap.NewNop())
	a := &stubWorker{name: "a"}
	b := &stubWorker{name: "b"}
	m.Register(a)
	m.Register(b)

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, a.started)
	assert.True(t, b.started)

	require.NoError(t, m.StopAll())
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestManagerSkipsWorkerThatFailsToStart(t *testing.T) {
	m := NewManager(zap.NewNop())
	bad := &stubWorker{name: "bad", startErr: errors.New("no dice")}
	good := &stubWorker{name: "good"}
	m.Register(bad)
	m.Register(good)

	require.NoError(t, m.StartAll(context.Background()))
	assert.False(t, bad.started)
	assert.True(t, good.started)

	require.NoError(t, m.StopAll())
}

func TestManagerRejectsDoubleStart(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.StartAll(context.Background()))
	assert.Error(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll())
}

func TestManagerStopAllIsIdempotentWhenNotRunning(t *testing.T) {
	m := NewManager(zap.NewNop())
	assert.NoError(t, m.StopAll())
}
