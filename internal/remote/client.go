// Package remote implements the HTTP contract of the remote cart service.
// The service is consumed, never implemented, here; the mock server under
// internal/mockapi exists only for development and tests.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nileshop/cartsync/internal/domain"
	"github.com/nileshop/cartsync/internal/wire"
)

const (
	requestTimeout = 10 * time.Second

	mutateRetries    = 2
	mutateRetryDelay = time.Second
	removeRetries    = 1
	removeRetryDelay = 500 * time.Millisecond

	// breakerTrip is well past the per-call retry budget so the breaker only
	// opens on a sustained outage, never on one retried call.
	breakerTrip = 8
)

// Auth carries the per-call credentials: a bearer token when a user session
// exists, and the generated guest session id in all cases.
type Auth struct {
	Token     string
	SessionID string
}

// StatusError is a non-2xx reply from the cart service. Business rejections
// reach the caller as this type; they must not mutate local state.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cart service replied %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("cart service replied %d", e.StatusCode)
}

// Client talks to the remote cart service. Every call has a fixed 10s
// deadline; mutating calls retry on any transport error. Note the retry
// policy is deliberately permissive and also re-sends 4xx failures,
// preserving the legacy behavior until product decides to tighten it.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     logrus.FieldLogger
}

func New(baseURL string, log logrus.FieldLogger) *Client {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name: "cart-service",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > breakerTrip
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Business rejections are not an outage.
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
				return true
			}
			return false
		},
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		log:     log,
	}
}

func (c *Client) FetchCart(ctx context.Context, auth Auth) (domain.Cart, error) {
	return c.call(ctx, http.MethodGet, "/cart", nil, auth, 0, 0)
}

func (c *Client) AddLine(ctx context.Context, auth Auth, productID string, quantity int) (domain.Cart, error) {
	body := map[string]any{"productId": productID, "quantity": quantity}
	return c.call(ctx, http.MethodPost, "/cart/add", body, auth, mutateRetries, mutateRetryDelay)
}

func (c *Client) RemoveLine(ctx context.Context, auth Auth, lineID string) (domain.Cart, error) {
	return c.call(ctx, http.MethodDelete, "/cart/"+lineID, nil, auth, removeRetries, removeRetryDelay)
}

func (c *Client) UpdateQuantity(ctx context.Context, auth Auth, lineID string, quantity int) (domain.Cart, error) {
	body := map[string]any{"quantity": quantity}
	return c.call(ctx, http.MethodPut, "/cart/"+lineID, body, auth, mutateRetries, mutateRetryDelay)
}

// Merge folds the pre-login cart into the user's cart. The server aggregates
// quantities per product, so a re-sent merge whose first attempt landed would
// double-apply the guest cart; it is never retried.
func (c *Client) Merge(ctx context.Context, auth Auth, items []domain.CartLine) (domain.Cart, error) {
	body := map[string]any{"items": items}
	return c.call(ctx, http.MethodPost, "/cart/merge", body, auth, 0, 0)
}

func (c *Client) PriceAcceptance(ctx context.Context, auth Auth, lineID string, accepted bool) (domain.Cart, error) {
	body := map[string]any{"itemId": lineID, "accepted": accepted}
	return c.call(ctx, http.MethodPost, "/cart/price-acceptance", body, auth, 0, 0)
}

// Clear empties the server-side cart. The reply may omit the cart entirely or
// carry no body at all; callers substitute an empty cart when Items is nil.
func (c *Client) Clear(ctx context.Context, auth Auth) (domain.Cart, error) {
	raw, err := c.exec(ctx, http.MethodDelete, "/cart", nil, auth, 0, 0)
	if err != nil {
		return domain.Cart{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.Cart{}, nil
	}

	cart, err := wire.DecodeCart(raw)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("DELETE /cart: %w", err)
	}
	return cart, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, auth Auth, retries int, delay time.Duration) (domain.Cart, error) {
	raw, err := c.exec(ctx, method, path, body, auth, retries, delay)
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := wire.DecodeCart(raw)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return cart, nil
}

func (c *Client) exec(ctx context.Context, method, path string, body any, auth Auth, retries int, delay time.Duration) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	return c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, method, path, payload, auth, retries, delay)
	})
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte, auth Auth, retries int, delay time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.log.WithFields(logrus.Fields{
				"method":  method,
				"path":    path,
				"attempt": attempt + 1,
			}).WithError(lastErr).Warn("retrying cart service call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := c.do(ctx, method, path, payload, auth)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, auth Auth) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
	if auth.SessionID != "" {
		req.Header.Set("X-Session-ID", auth.SessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, nil
}

func errorMessage(raw []byte) string {
	var reply struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ""
	}
	if reply.Message != "" {
		return reply.Message
	}
	return reply.Error
}
