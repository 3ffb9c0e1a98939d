// Package power suspends the tablet after a period without taps or gateway
// commands. Suspending while the EPDC is still driving a waveform leaves
// a half-updated panel, so callers hold the manager busy around refresh
// work and paint their sleep screen in BeforeSuspend.
package power

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrSuspendInProgress = errors.New("power: suspend already in progress")
	ErrSuspendBlocked    = errors.New("power: suspend blocked")
)

type timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type clock interface {
	Now() time.Time
	NewTimer(d time.Duration) timer
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTimer(d time.Duration) timer {
	return &systemTimer{timer: time.NewTimer(d)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) C() <-chan time.Time        { return t.timer.C }
func (t *systemTimer) Stop() bool                 { return t.timer.Stop() }
func (t *systemTimer) Reset(d time.Duration) bool { return t.timer.Reset(d) }

type Manager struct {
	IdleTimeout   time.Duration
	Enabled       bool
	BeforeSuspend func()
	AfterResume   func()
	Logger        zerolog.Logger

	clock        clock
	suspendFunc  func() error
	debounce     time.Duration
	initOnce     sync.Once
	idleMu       sync.Mutex
	idleTimer    timer
	suspending   atomic.Bool
	holds        atomic.Int32
	lastWakeNano atomic.Int64
}

// Hold keeps the tablet awake until the returned release is called.
func (m *Manager) Hold() (release func()) {
	m.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { m.holds.Add(-1) })
	}
}

// Busy reports whether any Hold is outstanding.
func (m *Manager) Busy() bool {
	return m.holds.Load() > 0
}

func (m *Manager) ResetIdle() {
	m.init()
	if !m.Enabled || m.IdleTimeout <= 0 {
		return
	}
	m.idleMu.Lock()
	defer m.idleMu.Unlock()
	if m.idleTimer == nil {
		m.idleTimer = m.clock.NewTimer(m.IdleTimeout)
		return
	}
	if !m.idleTimer.Stop() {
		drainTimer(m.idleTimer)
	}
	m.idleTimer.Reset(m.IdleTimeout)
}

func (m *Manager) Suspend() error {
	m.init()
	if !m.Enabled {
		return nil
	}
	if !m.suspending.CompareAndSwap(false, true) {
		return ErrSuspendInProgress
	}
	defer m.suspending.Store(false)
	if !m.canSuspend() {
		return ErrSuspendBlocked
	}
	if m.BeforeSuspend != nil {
		m.BeforeSuspend()
	}
	m.Logger.Info().Msg("suspending")
	if err := m.suspendFunc(); err != nil {
		return err
	}
	m.lastWakeNano.Store(m.clock.Now().UnixNano())
	m.Logger.Info().Msg("resumed")
	if m.AfterResume != nil {
		m.AfterResume()
	}
	m.ResetIdle()
	return nil
}

func (m *Manager) Run(ctx context.Context) error {
	m.init()
	if !m.Enabled || m.IdleTimeout <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	m.idleMu.Lock()
	if m.idleTimer == nil {
		m.idleTimer = m.clock.NewTimer(m.IdleTimeout)
	}
	t := m.idleTimer
	m.idleMu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			if err := m.Suspend(); err != nil {
				m.Logger.Debug().Err(err).Msg("idle suspend skipped")
			}
			m.ResetIdle()
		}
	}
}

func (m *Manager) canSuspend() bool {
	if m.Busy() {
		return false
	}
	if last := m.lastWakeNano.Load(); last != 0 {
		if m.clock.Now().Sub(time.Unix(0, last)) < m.debounce {
			return false
		}
	}
	return true
}

func (m *Manager) init() {
	m.initOnce.Do(func() {
		if m.clock == nil {
			m.clock = systemClock{}
		}
		if m.suspendFunc == nil {
			m.suspendFunc = suspendToRAM
		}
		if m.debounce == 0 {
			m.debounce = 30 * time.Second
		}
	})
}

func drainTimer(t timer) {
	for {
		select {
		case <-t.C():
		default:
			return
		}
	}
}

func suspendToRAM() error {
	return os.WriteFile("/sys/power/state", []byte("mem"), 0)
}
