// Package observer filters intercepted CDP network events down to
// youtubei API requests and turns the first extractable one into a
// published credential plus a one-shot completion signal.
package observer

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/varjak-dev/potokend/internal/token"
)

const (
	// Any POST into this namespace is an extraction candidate.
	apiNamespace = "youtubei/v1/"
	// The player endpoint is the usual carrier; other endpoints in the
	// namespace are attempted too, they just get a note in the log.
	playerEndpoint = "/youtubei/v1/player"
)

// Observer consumes the CDP event stream of one browser tab. Arm resets
// it for a new extraction attempt; Done is closed exactly once per
// attempt, when the first credential is captured.
type Observer struct {
	logger    *zap.Logger
	extractor *token.Extractor
	store     *token.Store

	mu    sync.Mutex
	done  chan struct{}
	fired bool
}

// New creates an unarmed observer publishing into the given store.
func New(logger *zap.Logger, extractor *token.Extractor, store *token.Store) *Observer {
	return &Observer{
		logger:    logger.Named("observer"),
		extractor: extractor,
		store:     store,
		done:      make(chan struct{}),
		fired:     true, // unarmed; Handle ignores events until Arm
	}
}

// Arm resets the completion signal for a new extraction session.
func (o *Observer) Arm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = make(chan struct{})
	o.fired = false
}

// Done returns the channel closed when a credential has been captured
// during the current session.
func (o *Observer) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Handle dispatches one CDP event. Only outgoing requests can affect
// control flow; responses and failures are diagnostic.
func (o *Observer) Handle(ctx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		o.handleRequest(ctx, e)
	case *network.EventResponseReceived:
		if e.Response != nil {
			o.logger.Debug("network response",
				zap.Int64("status", e.Response.Status),
				zap.String("url", e.Response.URL),
				zap.String("mime_type", e.Response.MimeType))
		}
	case *network.EventLoadingFailed:
		o.logger.Debug("network failure",
			zap.String("request_id", string(e.RequestID)),
			zap.String("error", e.ErrorText),
			zap.Bool("canceled", e.Canceled))
	}
}

func (o *Observer) handleRequest(ctx context.Context, e *network.EventRequestWillBeSent) {
	req := e.Request
	if req == nil {
		return
	}
	if req.Method != "POST" {
		return
	}
	if !strings.Contains(req.URL, apiNamespace) {
		o.logger.Debug("ignoring POST outside the youtubei namespace", zap.String("url", req.URL))
		return
	}

	o.mu.Lock()
	alreadyFired := o.fired
	o.mu.Unlock()
	if alreadyFired {
		// A credential was already captured this session.
		return
	}

	if !strings.Contains(req.URL, playerEndpoint) {
		o.logger.Debug("POST to non-player youtubei endpoint, attempting extraction anyway",
			zap.String("url", req.URL))
	}

	cred, err := o.extractor.Extract(requestBody(req))
	if err != nil {
		o.logger.Debug("matched endpoint but extraction failed",
			zap.String("url", req.URL), zap.Error(err))
		return
	}

	o.mu.Lock()
	if o.fired {
		o.mu.Unlock()
		return
	}
	o.fired = true
	done := o.done
	o.mu.Unlock()

	o.store.Publish(ctx, cred)
	o.logger.Info("new credential captured", zap.Int64("updated", cred.Updated))
	close(done)
}

// requestBody reassembles the POST body from the CDP post data entries.
// Entries arrive base64 encoded; fall back to the raw bytes when an
// entry is not valid base64 text.
func requestBody(req *network.Request) string {
	if !req.HasPostData || len(req.PostDataEntries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, entry := range req.PostDataEntries {
		if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil && utf8.Valid(decoded) {
			sb.Write(decoded)
			continue
		}
		sb.WriteString(entry.Bytes)
	}
	return sb.String()
}
