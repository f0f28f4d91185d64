// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"testing"
)

var endpointSeq atomic.Int64

// PushKeys returns browser-shaped key material: an uncompressed P-256 public
// key and a 16 byte auth secret, both unpadded base64url.
func PushKeys(t testing.TB) (p256dh, auth string) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate p256 key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

// Endpoint returns a unique FCM-looking push endpoint, long enough to be
// truncated in logs like real ones.
func Endpoint() string {
	return fmt.Sprintf("https://fcm.googleapis.com/fcm/send/cX4mGq1LQ9e:APA91bF-device-%04d", endpointSeq.Add(1))
}
