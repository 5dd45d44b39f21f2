// Package webhook implements the outbound mirror posts. Each post is a
// self-contained background HTTPS request: it captures only the target URL
// and the serialized payload, so a slow sink can never stall a room actor.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/metrics"
	"github.com/textroom/server/internal/v1/wire"
)

const requestTimeout = 10 * time.Second

// Poster posts JSON payloads to a URL fixed at construction. Failures are
// logged and discarded; they never propagate into room state.
type Poster struct {
	postURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewPoster creates a poster for the given sink URL. Rooms create one
// lazily, only when their post URL is set.
func NewPoster(postURL string) *Poster {
	st := gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	return &Poster{
		postURL: postURL,
		client:  &http.Client{Timeout: requestTimeout},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// Post encodes the message and fires the POST on a background goroutine.
// It returns immediately; the HTTP response is logged and discarded.
func (p *Poster) Post(message wire.Message) {
	body, err := json.Marshal(message)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal webhook payload", zap.Error(err))
		return
	}
	go p.post(body)
}

func (p *Poster) post(body []byte) {
	ctx := context.Background()
	_, err := p.cb.Execute(func() (any, error) {
		req, err := http.NewRequest(http.MethodPost, p.postURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			// Non-200 is logged, never retried.
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			logging.Warn(ctx, "Webhook post rejected",
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", snippet))
			metrics.WebhookPosts.WithLabelValues("rejected").Inc()
			return nil, nil
		}

		metrics.WebhookPosts.WithLabelValues("ok").Inc()
		logging.Debug(ctx, "Webhook post delivered", zap.String("url", p.postURL))
		return nil, nil
	})
	if err != nil {
		metrics.WebhookPosts.WithLabelValues("error").Inc()
		logging.Warn(ctx, "Webhook post failed", zap.Error(err), zap.String("url", p.postURL))
	}
}
