// Package updater owns the refresh lifecycle: the single-flight update
// controller and the browser-driven extraction session it serializes.
package updater

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/varjak-dev/potokend/internal/token"
)

// Tab is the browser capability surface one extraction session needs.
// *browser.Browser satisfies it; tests substitute fakes.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	FindClickable(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Subscribe(handler func(ev interface{})) error
	Stop()
}

// Launcher starts a fresh browser for one attempt.
type Launcher interface {
	Launch(ctx context.Context) (Tab, error)
}

// CaptureSignal is the observer side of an attempt: armed at the start,
// fed CDP events, done when a credential lands in the store.
type CaptureSignal interface {
	Arm()
	Done() <-chan struct{}
	Handle(ctx context.Context, ev interface{})
}

// Config carries the knobs of the refresh loop and of one attempt. The
// zero value is unusable; start from DefaultConfig.
type Config struct {
	// Interval between scheduled refreshes.
	Interval time.Duration
	// HardCeiling bounds one whole attempt, browser launch included.
	HardCeiling time.Duration
	// ShortWait is the capture window on the embed page, LongWait the
	// one on the fallback watch page.
	ShortWait time.Duration
	LongWait  time.Duration
	// SelectorTimeout bounds each individual element lookup.
	SelectorTimeout time.Duration

	EmbedURL string
	WatchURL string

	ConsentSelectors []string
	PlayerSelectors  []string
}

// DefaultConfig returns the production settings. Only Interval is meant
// to be overridden by configuration; the rest encode how the target
// pages behave.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		HardCeiling:     600 * time.Second,
		ShortWait:       15 * time.Second,
		LongWait:        120 * time.Second,
		SelectorTimeout: 2 * time.Second,
		EmbedURL:        "https://www.youtube.com/embed/jNQXAC9IVRw?autoplay=1&mute=1&playsinline=1&hl=en",
		WatchURL:        "https://www.youtube.com/watch?v=jNQXAC9IVRw&hl=en&autoplay=1&mute=1",
		ConsentSelectors: []string{
			`button[aria-label="Agree"]`,
			`button[aria-label="I agree"]`,
			`button[aria-label="Accept all"]`,
			`#introAgreeButton`,
			`form[action*="consent"] button[type="submit"]`,
		},
		PlayerSelectors: []string{
			`#movie_player .ytp-large-play-button`,
			`#movie_player`,
			`video`,
		},
	}
}

// Updater serializes refresh attempts and exposes the stored credential.
// One goroutine runs Run; Get and RequestUpdate may be called from any
// goroutine.
type Updater struct {
	cfg      Config
	logger   *zap.Logger
	launcher Launcher
	signal   CaptureSignal
	store    *token.Store

	// updating is held for the full duration of one attempt, hard
	// ceiling included. It is the single-flight guarantee.
	updating sync.Mutex
	// inFlight mirrors the mutex for non-blocking RequestUpdate checks.
	inFlight atomic.Bool
	// force carries at most one pending out-of-cycle refresh request.
	force chan struct{}
}

// New wires an update controller. The store is shared with the observer
// behind the capture signal, which publishes into it on success.
func New(cfg Config, logger *zap.Logger, launcher Launcher, signal CaptureSignal, store *token.Store) *Updater {
	return &Updater{
		cfg:      cfg,
		logger:   logger.Named("updater"),
		launcher: launcher,
		signal:   signal,
		store:    store,
		force:    make(chan struct{}, 1),
	}
}

// Get returns the most recently extracted credential. Never blocks.
func (u *Updater) Get() (token.Credential, bool) {
	return u.store.Get()
}

// RunOnce performs exactly one refresh attempt and returns whatever the
// store holds afterwards.
func (u *Updater) RunOnce(ctx context.Context) (token.Credential, bool) {
	u.update(ctx)
	return u.Get()
}

// Run refreshes immediately, then again whenever the interval elapses
// or a forced refresh arrives, whichever comes first. It only returns
// when ctx is cancelled; no attempt failure escapes it.
func (u *Updater) Run(ctx context.Context) error {
	u.update(ctx)

	timer := time.NewTimer(u.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.force:
			u.logger.Debug("initiating forced update")
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			u.logger.Debug("initiating scheduled update")
		}

		u.update(ctx)

		// A force request posted between the trigger and the attempt
		// start has been served by this attempt; drop it.
		select {
		case <-u.force:
		default:
		}
		timer.Reset(u.cfg.Interval)
	}
}

// RequestUpdate asks for an out-of-cycle refresh. It reports false,
// without side effects, while an attempt is running or while an earlier
// request is still pending. Safe to call from any goroutine.
func (u *Updater) RequestUpdate() bool {
	if u.inFlight.Load() {
		u.logger.Debug("update request rejected: attempt in progress")
		return false
	}
	select {
	case u.force <- struct{}{}:
		u.logger.Debug("forced update requested")
		return true
	default:
		u.logger.Debug("update request rejected: one already pending")
		return false
	}
}

// update runs one attempt under the single-flight guard and the hard
// ceiling. Every failure is reported to the log and absorbed here.
func (u *Updater) update(ctx context.Context) {
	u.updating.Lock()
	defer u.updating.Unlock()
	u.inFlight.Store(true)
	defer u.inFlight.Store(false)

	attemptCtx, cancel := context.WithTimeout(ctx, u.cfg.HardCeiling)
	defer cancel()

	u.logger.Info("update started")
	err := u.performUpdate(attemptCtx)
	switch {
	case err == nil:
		u.logger.Info("update finished")
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		u.logger.Error("update failed: hard ceiling exceeded; the browser may be failing to start")
	case ctx.Err() != nil:
		u.logger.Warn("update aborted: shutting down")
	default:
		u.logger.Error("update failed", zap.Error(err))
	}
}
