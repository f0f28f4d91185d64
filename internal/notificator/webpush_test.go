package notificator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
	"github.com/core-coin/doorbell/pkg/testutil"
)

type pushRequest struct {
	auth     string
	ttl      string
	urgency  string
	topic    string
	encoding string
	body     []byte
}

func newPushServer(t *testing.T, status int) (*httptest.Server, <-chan pushRequest) {
	t.Helper()
	received := make(chan pushRequest, 1)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- pushRequest{
			auth:     r.Header.Get("Authorization"),
			ttl:      r.Header.Get("TTL"),
			urgency:  r.Header.Get("Urgency"),
			topic:    r.Header.Get("Topic"),
			encoding: r.Header.Get("Content-Encoding"),
			body:     body,
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func newTestTransport(t *testing.T, srv *httptest.Server) *WebPushTransport {
	t.Helper()
	priv, pub, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPushTransport(logger.NewNop(), WebPushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subject:         "mailto:ops@example.com",
		TTL:             60,
		Timeout:         5 * time.Second,
	}).WithHTTPClient(srv.Client())
}

func testSubscription(t *testing.T, endpoint string) *models.PushSubscription {
	p256dh, auth := testutil.PushKeys(t)
	return &models.PushSubscription{ID: 1, Endpoint: endpoint, P256dh: p256dh, Auth: auth, IsActive: true}
}

func TestWebPushTransportDelivers(t *testing.T) {
	srv, received := newPushServer(t, http.StatusCreated)
	transport := newTestTransport(t, srv)

	err := transport.Send(context.Background(), testSubscription(t, srv.URL+"/push/abc"), []byte(`{"title":"ring"}`))
	require.NoError(t, err)

	req := <-received
	assert.True(t, strings.HasPrefix(req.auth, "vapid t="), "VAPID authorization header, got %q", req.auth)
	assert.Equal(t, "60", req.ttl)
	assert.Equal(t, "high", req.urgency)
	assert.Equal(t, models.RingTag, req.topic)
	assert.Equal(t, "aes128gcm", req.encoding)
	assert.NotContains(t, string(req.body), "ring", "payload must be encrypted")
}

func TestWebPushTransportGone(t *testing.T) {
	srv, _ := newPushServer(t, http.StatusGone)
	transport := newTestTransport(t, srv)

	err := transport.Send(context.Background(), testSubscription(t, srv.URL+"/push/expired"), []byte(`{}`))
	require.Error(t, err)

	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusGone, te.StatusCode)
	assert.True(t, te.Gone())
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestWebPushTransportUnreachable(t *testing.T) {
	srv, _ := newPushServer(t, http.StatusCreated)
	transport := newTestTransport(t, srv)
	url := srv.URL
	srv.Close()

	err := transport.Send(context.Background(), testSubscription(t, url+"/push/down"), []byte(`{}`))
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.False(t, te.Gone())
}
