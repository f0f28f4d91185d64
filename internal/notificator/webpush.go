package notificator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
)

type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subject is the VAPID contact, "mailto:..." or an https URL.
	Subject string
	// TTL is how long the push service holds an undelivered message, in seconds.
	TTL     int
	Timeout time.Duration
}

// WebPushTransport delivers payloads through the browser vendors' push services
// with VAPID authentication and aes128gcm encryption.
type WebPushTransport struct {
	logger *logger.Logger
	cfg    WebPushConfig
	client *http.Client
}

var _ models.PushTransport = (*WebPushTransport)(nil)

func NewWebPushTransport(logger *logger.Logger, cfg WebPushConfig) *WebPushTransport {
	return &WebPushTransport{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient swaps the HTTP client, e.g. for a test server.
func (t *WebPushTransport) WithHTTPClient(c *http.Client) *WebPushTransport {
	t.client = c
	return t
}

func (t *WebPushTransport) Send(ctx context.Context, sub *models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.client,
		Subscriber:      strings.TrimPrefix(t.cfg.Subject, "mailto:"),
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		TTL:             t.cfg.TTL,
		Urgency:         webpush.UrgencyHigh,
		Topic:           models.RingTag,
	})
	if err != nil {
		return &models.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &models.TransportError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	t.logger.Debug("Push service accepted message", "status", resp.StatusCode)
	return nil
}

// GenerateVAPIDKeys returns a new base64url key pair for VAPID_PRIVATE_KEY and VAPID_PUBLIC_KEY.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
