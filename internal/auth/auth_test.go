package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/config"
)

func TestServerIDHashVectors(t *testing.T) {
	tests := map[string]string{
		"Notch": "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48",
		"jeb_":  "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1",
		"simon": "88e16a1019277b15d58faf0541e11910eb756f6",
	}
	for name, want := range tests {
		sum := sha1.Sum([]byte(name))
		assert.Equal(t, want, twosComplementHex(sum[:]), name)
	}
}

func TestServerIDHashConcatenates(t *testing.T) {
	secret := []byte("0123456789abcdef")
	der := []byte{0x30, 0x81, 0x9f}
	sum := sha1.Sum(append(append([]byte{}, secret...), der...))
	assert.Equal(t, twosComplementHex(sum[:]), ServerIDHash(secret, der))
}

func TestKeyPairRoundTrip(t *testing.T) {
	kp, err := DefaultKeyPair()
	require.NoError(t, err)
	again, err := DefaultKeyPair()
	require.NoError(t, err)
	assert.Same(t, kp, again)

	pub, err := x509.ParsePKIXPublicKey(kp.PublicDER())
	require.NoError(t, err)
	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, KeyBits, rsaPub.N.BitLen())

	secret := []byte("sixteen byte key")
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, secret)
	require.NoError(t, err)
	pt, err := kp.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, secret, pt)

	_, err = kp.Decrypt([]byte("garbage"))
	assert.Error(t, err)
}

func TestNewVerifyToken(t *testing.T) {
	a, err := NewVerifyToken()
	require.NoError(t, err)
	assert.Len(t, a, 4)
}

func TestOfflineUUID(t *testing.T) {
	id := OfflineUUID("Notch")
	assert.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", id.String())
	assert.Equal(t, uuid.Version(3), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
	assert.NotEqual(t, id, OfflineUUID("notch"))
}

func TestStaticRemapper(t *testing.T) {
	target := uuid.MustParse("0f6c4a5e-94b1-4f31-a4b2-2f5b0b7e9b11")
	r := NewStaticRemapper([]config.RemapEntry{
		{Username: "Alice", TargetUsername: "alice_alt", TargetUUID: target.String()},
		{Username: "bob", TargetUsername: "x", TargetUUID: "not-a-uuid"},
	})

	id, ok := r.Remap("alice")
	require.True(t, ok)
	assert.Equal(t, Identity{Username: "alice_alt", UUID: target}, id)

	_, ok = r.Remap("bob")
	assert.False(t, ok)

	r.Update(nil)
	_, ok = r.Remap("alice")
	assert.False(t, ok)
}

func newSessionClient(t *testing.T, handler http.HandlerFunc) *SessionClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSessionClient(&config.AuthConfig{
		SessionServer: srv.URL + "/",
		Timeout:       time.Second,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
	})
}

func TestHasJoined(t *testing.T) {
	var query atomic.Value
	client := newSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		assert.Equal(t, "/session/minecraft/hasJoined", r.URL.Path)
		fmt.Fprint(w, `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch",
			"properties":[{"name":"textures","value":"dGV4","signature":"c2ln"}]}`)
	})

	profile, err := client.HasJoined(context.Background(), "Notch", "-7c9d", "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, "Notch", profile.Name)
	id, err := profile.UUID()
	require.NoError(t, err)
	assert.Equal(t, "069a79f4-44e9-4726-a5be-fca90e38aaf5", id.String())
	require.Len(t, profile.Properties, 1)
	assert.Equal(t, "c2ln", profile.Properties[0].Signature)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"Notch"}, q["username"])
	assert.Equal(t, []string{"-7c9d"}, q["serverId"])
	assert.Equal(t, []string{"203.0.113.5"}, q["ip"])
}

func TestHasJoinedOmitsPrivateIP(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "192.168.1.20", "10.1.2.3", "::ffff:10.0.0.1"} {
		var hadIP atomic.Bool
		client := newSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
			hadIP.Store(r.URL.Query().Has("ip"))
			fmt.Fprint(w, `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch","properties":[]}`)
		})
		_, err := client.HasJoined(context.Background(), "Notch", "1", ip)
		require.NoError(t, err)
		assert.False(t, hadIP.Load(), ip)
	}
}

func TestHasJoinedRejections(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusForbidden, http.StatusNotFound} {
		var calls atomic.Int32
		client := newSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		})
		_, err := client.HasJoined(context.Background(), "Notch", "1", "")
		assert.True(t, errors.Is(err, ErrSessionRejected), "status %d: %v", status, err)
		assert.Equal(t, int32(1), calls.Load(), "rejections are not retried")
	}
}

func TestHasJoinedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch"}`)
	})
	profile, err := client.HasJoined(context.Background(), "Notch", "1", "")
	require.NoError(t, err)
	assert.Equal(t, "Notch", profile.Name)
	assert.Equal(t, int32(3), calls.Load())
}
