package centroidal

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

// LoopConfig holds the loop settings.
type LoopConfig struct {
	// Frequency is the control frequency in Hz.
	Frequency float64 `yaml:"frequency"`
}

// loopTicker emits the control impulse and carries the stop signal.
type loopTicker struct {
	ticker *clock.Ticker
	stop   chan bool
}

// Loop drives a centroidal manager at a fixed frequency. Each cycle it
// updates the manager, invokes the cycle hook if one is set, and records
// telemetry. A stopped loop cannot be restarted.
type Loop struct {
	cfg    LoopConfig
	logger golog.Logger
	mgr    Manager
	clk    clock.Clock
	rec    *telemetry.Recorder
	hook   func(t float64) error
	dt     time.Duration

	ct                      loopTicker
	activeBackgroundWorkers sync.WaitGroup
	cancelCtx               context.Context
	cancel                  context.CancelFunc

	mu      sync.Mutex
	running bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopClock substitutes the clock driving the ticker.
func WithLoopClock(c clock.Clock) LoopOption {
	return func(l *Loop) { l.clk = c }
}

// WithRecorder records telemetry at the end of every cycle.
func WithRecorder(rec *telemetry.Recorder) LoopOption {
	return func(l *Loop) { l.rec = rec }
}

// WithCycleHook runs fn after every manager update, before telemetry is
// recorded.
func WithCycleHook(fn func(t float64) error) LoopOption {
	return func(l *Loop) { l.hook = fn }
}

// NewLoop builds a loop around a manager.
func NewLoop(logger golog.Logger, cfg LoopConfig, mgr Manager, opts ...LoopOption) (*Loop, error) {
	if mgr == nil {
		return nil, errors.New("a centroidal manager is required")
	}
	if cfg.Frequency <= 0 || cfg.Frequency > 1000 {
		return nil, errors.Errorf("loop frequency must be in (0, 1000] Hz, got %v", cfg.Frequency)
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		cfg:       cfg,
		logger:    logger,
		mgr:       mgr,
		clk:       clock.New(),
		dt:        time.Duration(float64(time.Second) / cfg.Frequency),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Dt returns the control cycle duration.
func (l *Loop) Dt() time.Duration { return l.dt }

// Start resets the manager and begins ticking at the configured
// frequency. Cycle times count up from zero in steps of the period.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("control loop is already running")
	}
	if err := l.mgr.Reset(0); err != nil {
		return errors.Wrap(err, "failed to reset the centroidal manager")
	}
	l.logger.Infow("starting control loop", "frequency", l.cfg.Frequency, "dt", l.dt)
	l.ct = loopTicker{
		ticker: l.clk.Ticker(l.dt),
		stop:   make(chan bool, 1),
	}
	waitCh := make(chan struct{})
	l.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		ct := l.ct
		close(waitCh)
		cycle := 0
		for {
			if l.cancelCtx.Err() != nil {
				return
			}
			select {
			case <-ct.ticker.C:
				t := float64(cycle) * l.dt.Seconds()
				cycle++
				l.runCycle(t)
			case <-ct.stop:
				return
			case <-l.cancelCtx.Done():
				return
			}
		}
	}, l.activeBackgroundWorkers.Done)
	<-waitCh
	l.running = true
	return nil
}

func (l *Loop) runCycle(t float64) {
	if err := l.mgr.Update(t); err != nil {
		l.logger.Errorw("manager update failed", "t", t, "error", err)
		return
	}
	if l.hook != nil {
		if err := l.hook(t); err != nil {
			l.logger.Errorw("cycle hook failed", "t", t, "error", err)
			return
		}
	}
	if l.rec != nil {
		if err := l.rec.Record(t); err != nil {
			l.logger.Errorw("telemetry record failed", "t", t, "error", err)
		}
	}
}

// Stop halts the ticker and waits for the worker to drain.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.logger.Debug("closing control loop")
	l.ct.ticker.Stop()
	close(l.ct.stop)
	l.cancel()
	l.activeBackgroundWorkers.Wait()
	l.running = false
}
