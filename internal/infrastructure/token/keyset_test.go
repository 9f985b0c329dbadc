package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
)

type jwksServer struct {
	*httptest.Server
	mu    sync.Mutex
	keys  []jose.JSONWebKey
	hits  atomic.Int32
	delay atomic.Int64
	fail  atomic.Bool
}

func newJWKSServer(t *testing.T, keys ...jose.JSONWebKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if d := time.Duration(s.delay.Load()); d > 0 {
			time.Sleep(d)
		}
		if s.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		set := jose.JSONWebKeySet{Keys: s.keys}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...jose.JSONWebKey) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

func rsaKey(t *testing.T, kid string) (*rsa.PrivateKey, jose.JSONWebKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
}

func signRS256(t *testing.T, priv *rsa.PrivateKey, kid, audience string) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		Email: "alice@example.com",
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-9",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(priv)
	require.NoError(t, err)
	return raw
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestRemoteKeySet_VerifyWithJWKS(t *testing.T) {
	priv, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()))
	defer ks.Close()

	ver, err := NewVerifier(VerifierConfig{KeySet: ks, Secret: "ignored", Issuer: testIssuer, Audience: testAudience})
	require.NoError(t, err)
	assert.True(t, ver.UsesKeySet())
	assert.False(t, ks.Ready())

	p, err := ver.Verify(context.Background(), signRS256(t, priv, "k1", testAudience))
	require.NoError(t, err)
	assert.Equal(t, "user-9", p.UserID)
	assert.Equal(t, []string{"admin"}, p.Roles)
	assert.True(t, ks.Ready())

	// cached: second verification does not refetch
	_, err = ver.Verify(context.Background(), signRS256(t, priv, "k1", testAudience))
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.hits.Load())

	_, err = ver.Verify(context.Background(), signRS256(t, priv, "k1", "other"))
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestRemoteKeySet_RejectsHS256WhenUsingJWKS(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()))
	ver, err := NewVerifier(VerifierConfig{KeySet: ks, Secret: testSecret, Issuer: testIssuer, Audience: testAudience})
	require.NoError(t, err)

	iss, err := NewIssuer(IssuerConfig{Secret: testSecret, Issuer: testIssuer, Audience: testAudience})
	require.NoError(t, err)
	raw, err := iss.IssueToken(context.Background(), testUser(t))
	require.NoError(t, err)

	_, err = ver.Verify(context.Background(), raw)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestRemoteKeySet_RefreshOnKidMiss(t *testing.T) {
	_, pub1 := rsaKey(t, "k1")
	priv2, pub2 := rsaKey(t, "k2")
	srv := newJWKSServer(t, pub1)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()), WithMinRefreshInterval(0))

	_, err := ks.Key(context.Background(), "k1")
	require.NoError(t, err)

	srv.setKeys(pub1, pub2)
	ver, err := NewVerifier(VerifierConfig{KeySet: ks, Issuer: testIssuer, Audience: testAudience})
	require.NoError(t, err)
	_, err = ver.Verify(context.Background(), signRS256(t, priv2, "k2", testAudience))
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestRemoteKeySet_KidMissIsRateLimited(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()), WithMinRefreshInterval(time.Hour))

	for i := 0; i < 5; i++ {
		_, err := ks.Key(context.Background(), "unknown")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestRemoteKeySet_ConcurrentMissesShareOneFetch(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	srv.delay.Store(int64(50 * time.Millisecond))
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ks.Key(context.Background(), "k1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestRemoteKeySet_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	srv.delay.Store(int64(150 * time.Millisecond))
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()))

	first, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, err := ks.Key(first, "k1")
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, err := ks.Key(context.Background(), "k1")
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		assert.NoError(t, <-errs)
	}
	assert.True(t, ks.Ready())
}

func TestRemoteKeySet_FailedRefreshKeepsKeys(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	var outcomes []error
	ks := NewRemoteKeySet(srv.URL,
		WithKeySetLogger(quietLogger()),
		WithRefreshHook(func(err error) { outcomes = append(outcomes, err) }),
	)

	require.NoError(t, ks.Refresh(context.Background()))
	srv.fail.Store(true)
	assert.Error(t, ks.Refresh(context.Background()))

	_, err := ks.Key(context.Background(), "k1")
	assert.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0])
	assert.Error(t, outcomes[1])
}

func TestRemoteKeySet_FetchTimeout(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	srv.delay.Store(int64(200 * time.Millisecond))
	ks := NewRemoteKeySet(srv.URL,
		WithKeySetLogger(quietLogger()),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
	)

	_, err := ks.Key(context.Background(), "k1")
	assert.Error(t, err)
	assert.False(t, ks.Ready())
}

func TestRemoteKeySet_SkipsNonSigningKeys(t *testing.T) {
	_, sig := rsaKey(t, "sig")
	_, enc := rsaKey(t, "enc")
	enc.Use = "enc"
	srv := newJWKSServer(t, sig, enc)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()), WithMinRefreshInterval(time.Hour))

	_, err := ks.Key(context.Background(), "sig")
	require.NoError(t, err)
	_, err = ks.Key(context.Background(), "enc")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// single key: an empty kid resolves to it
	key, err := ks.Key(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &rsa.PublicKey{}, key)
}

func TestRemoteKeySet_PeriodicRefreshAndClose(t *testing.T) {
	_, pub := rsaKey(t, "k1")
	srv := newJWKSServer(t, pub)
	ks := NewRemoteKeySet(srv.URL, WithKeySetLogger(quietLogger()))

	ks.Start(10 * time.Millisecond)
	assert.Eventually(t, func() bool { return srv.hits.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	ks.Close()

	after := srv.hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, srv.hits.Load())
	ks.Close()
}
