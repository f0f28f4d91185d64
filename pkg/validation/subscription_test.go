package validation

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/doorbell/pkg/testutil"
)

func TestValidateEndpoint(t *testing.T) {
	require.NoError(t, ValidateEndpoint("https://updates.push.services.mozilla.com/wpush/v2/abc"))

	for _, bad := range []string{"", "http://example.com/push", "https:///nohost", "::not a url"} {
		assert.Error(t, ValidateEndpoint(bad), "endpoint %q", bad)
	}
}

func TestValidateKeys(t *testing.T) {
	p256dh, auth := testutil.PushKeys(t)

	t.Run("browser keys are accepted", func(t *testing.T) {
		require.NoError(t, ValidateP256dh(p256dh))
		require.NoError(t, ValidateAuth(auth))
	})

	t.Run("padded keys are accepted", func(t *testing.T) {
		raw, err := DecodeKey(auth)
		require.NoError(t, err)
		require.NoError(t, ValidateAuth(base64.URLEncoding.EncodeToString(raw)))
	})

	t.Run("swapped keys are rejected", func(t *testing.T) {
		assert.Error(t, ValidateP256dh(auth))
		assert.Error(t, ValidateAuth(p256dh))
	})

	t.Run("compressed point is rejected", func(t *testing.T) {
		raw, err := DecodeKey(p256dh)
		require.NoError(t, err)
		raw[0] = 0x02
		assert.Error(t, ValidateP256dh(base64.RawURLEncoding.EncodeToString(raw)))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		assert.Error(t, ValidateAuth(""))
		assert.Error(t, ValidateAuth("!!!"))
	})
}

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID("9f1c2a9e-5d1b-4b8e-9a57-2a4f0f6f1c11"))
	assert.Error(t, ValidateUUID(""))
	assert.Error(t, ValidateUUID("42"))
}

func TestTruncateEndpoint(t *testing.T) {
	short := "https://push.example.com/x"
	assert.Equal(t, short, TruncateEndpoint(short))

	long := "https://fcm.googleapis.com/fcm/send/" + strings.Repeat("a", 100)
	got := TruncateEndpoint(long)
	assert.Len(t, got, 53)
	assert.True(t, strings.HasSuffix(got, "..."))
}
