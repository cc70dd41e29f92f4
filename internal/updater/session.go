package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errNoCapture means the page never issued an extractable youtubei
// request within either capture window.
var errNoCapture = errors.New("no youtubei request captured")

// performUpdate is one extraction session: navigate the embed page,
// nudge playback, wait briefly; if nothing is captured, fall back to
// the full watch page once with a longer wait. The browser is torn down
// on every exit path, hard-ceiling expiry included.
func (u *Updater) performUpdate(ctx context.Context) error {
	log := u.logger.With(zap.String("attempt_id", uuid.NewString()))

	u.signal.Arm()

	tab, err := u.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	defer tab.Stop()

	if err := tab.Subscribe(func(ev interface{}) { u.signal.Handle(ctx, ev) }); err != nil {
		return fmt.Errorf("subscribing to network events: %w", err)
	}

	log.Debug("navigating to embed page", zap.String("url", u.cfg.EmbedURL))
	if err := tab.Navigate(ctx, u.cfg.EmbedURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Soft: the target request can still fire from a partial load.
		log.Warn("embed navigation failed", zap.Error(err))
	} else {
		u.triggerPlayback(ctx, tab, log)
	}

	if u.waitForCapture(ctx, u.cfg.ShortWait, log) {
		return nil
	}

	log.Debug("falling back to watch page", zap.String("url", u.cfg.WatchURL))
	if err := tab.Navigate(ctx, u.cfg.WatchURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("watch page navigation failed", zap.Error(err))
	}
	if !u.triggerPlayback(ctx, tab, log) {
		log.Debug("player element not found; still waiting for the API request")
	}

	if u.waitForCapture(ctx, u.cfg.LongWait, log) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errNoCapture
}

// triggerPlayback dismisses a consent overlay if one is in the way and
// clicks the first available playback trigger. Every failure here is
// soft: autoplay or a service worker may fire the request regardless.
func (u *Updater) triggerPlayback(ctx context.Context, tab Tab, log *zap.Logger) bool {
	u.dismissConsent(ctx, tab, log)

	for _, sel := range u.cfg.PlayerSelectors {
		if ctx.Err() != nil {
			return false
		}
		if err := tab.FindClickable(ctx, sel, u.cfg.SelectorTimeout); err != nil {
			log.Debug("playback trigger not found", zap.String("selector", sel))
			continue
		}
		if err := tab.Click(ctx, sel); err != nil {
			log.Debug("playback trigger click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		log.Debug("clicked playback trigger", zap.String("selector", sel))
		return true
	}

	log.Warn("unable to locate any playback trigger")
	return false
}

// dismissConsent clicks the first consent button it can find, then lets
// the overlay settle. Not finding one is the common case.
func (u *Updater) dismissConsent(ctx context.Context, tab Tab, log *zap.Logger) {
	for _, sel := range u.cfg.ConsentSelectors {
		if ctx.Err() != nil {
			return
		}
		if err := tab.FindClickable(ctx, sel, u.cfg.SelectorTimeout); err != nil {
			continue
		}
		log.Debug("dismissing consent overlay", zap.String("selector", sel))
		if err := tab.Click(ctx, sel); err != nil {
			log.Debug("consent click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		sleep(ctx, time.Second)
		return
	}
}

// waitForCapture blocks until the observer captures a credential, the
// window elapses, or the attempt is aborted.
func (u *Updater) waitForCapture(ctx context.Context, window time.Duration, log *zap.Logger) bool {
	log.Debug("waiting for youtubei POST", zap.Duration("window", window))
	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-u.signal.Done():
		log.Info("credential captured")
		return true
	case <-timer.C:
		log.Warn("capture window elapsed without a youtubei POST")
		return false
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
