// Package browser owns the Chrome process lifecycle for one extraction
// attempt: launch, navigation, bounded element lookup and clicking, and
// the CDP event subscription the observer feeds on.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrLaunch marks failures to start the browser process, typically a
// missing executable. Fatal to the attempt, never to the daemon.
var ErrLaunch = errors.New("browser failed to launch")

// launchProbeTimeout bounds the responsiveness check after process start.
const launchProbeTimeout = 30 * time.Second

// Config describes how the browser process is started.
type Config struct {
	Headless       bool
	ExecutablePath string
	ProfileDir     string
	Args           []string
}

// Browser is one running Chrome process with a single tab. It is
// created per extraction attempt and torn down at the end of it.
type Browser struct {
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	profileDir     string
	ownsProfileDir bool
	stopOnce       sync.Once
}

// Launch starts a Chrome process and opens a blank tab, verifying the
// process responds before returning. The returned Browser is bound to
// ctx: cancelling it (the attempt's hard ceiling) terminates the
// process even if Stop is never reached.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Browser, error) {
	b := &Browser{
		logger:     logger.Named("browser"),
		profileDir: cfg.ProfileDir,
	}

	if b.profileDir == "" {
		dir, err := os.MkdirTemp("", "potokend-profile-*")
		if err != nil {
			return nil, fmt.Errorf("%w: creating profile dir: %v", ErrLaunch, err)
		}
		b.profileDir = dir
		b.ownsProfileDir = true
	}

	opts := buildAllocatorOptions(cfg, b.profileDir)
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	b.tabCtx, b.tabCancel = chromedp.NewContext(b.allocCtx)

	b.logger.Debug("starting browser",
		zap.Bool("headless", cfg.Headless),
		zap.String("executable", cfg.ExecutablePath),
		zap.String("profile_dir", b.profileDir))

	probeCtx, cancelProbe := context.WithTimeout(b.tabCtx, launchProbeTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		b.Stop()
		return nil, fmt.Errorf("%w: %v (install Chromium or set browser.executable_path)", ErrLaunch, err)
	}

	return b, nil
}

// buildAllocatorOptions assembles the Chrome flags. Later flags
// override the chromedp defaults, which is how the automation banner
// and the default headless mode are switched off.
func buildAllocatorOptions(cfg Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.UserDataDir(profileDir),
	)

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}

	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(trimFlag(arg), true))
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	return opts
}

func trimFlag(arg string) string {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	return arg
}

// Navigate loads a URL in the tab and returns once navigation settles
// or ctx expires.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

// FindClickable waits up to timeout for an element matching the CSS
// selector to become visible. A timeout is an expected outcome and is
// reported as an error for the caller to treat as soft.
func (b *Browser) FindClickable(ctx context.Context, selector string, timeout time.Duration) error {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.run(lookupCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Click dispatches a click to the first element matching the selector.
func (b *Browser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Subscribe enables the CDP network domain and forwards every event on
// this tab to the handler. The subscription lives until the tab closes.
func (b *Browser) Subscribe(handler func(ev interface{})) error {
	chromedp.ListenTarget(b.tabCtx, handler)
	if err := chromedp.Run(b.tabCtx, network.Enable()); err != nil {
		return fmt.Errorf("enabling network events: %w", err)
	}
	return nil
}

// Stop closes the tab and terminates the browser process. Safe to call
// multiple times and on every exit path of an attempt.
func (b *Browser) Stop() {
	b.stopOnce.Do(func() {
		// Graceful tab close first, then kill the process.
		if err := chromedp.Cancel(b.tabCtx); err != nil {
			b.logger.Debug("tab close returned error", zap.Error(err))
		}
		b.tabCancel()
		b.allocCancel()
		if b.ownsProfileDir {
			if err := os.RemoveAll(b.profileDir); err != nil {
				b.logger.Debug("failed to remove profile dir", zap.Error(err))
			}
		}
		b.logger.Debug("browser stopped")
	})
}

// run executes chromedp actions on the tab while honoring the caller's
// context in addition to the tab's own lifecycle.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(b.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context from parent that is additionally
// cancelled when secondary is done.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
