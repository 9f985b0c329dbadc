package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var ErrKeyNotFound = errors.New("jwks: key not found")

const (
	defaultFetchTimeout       = 5 * time.Second
	defaultMinRefreshInterval = 30 * time.Second
	maxJWKSBodyBytes          = 1 << 20
	flightKey                 = "jwks"
)

// RemoteKeySet is a process-wide cache of a JWKS document. Keys are fetched
// lazily on first use and again when a token names an unknown kid, at most
// once per minRefresh. Concurrent misses share a single fetch.
type RemoteKeySet struct {
	uri        string
	client     *http.Client
	log        logrus.FieldLogger
	minRefresh time.Duration
	onRefresh  func(err error)
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]any
	lastAttempt time.Time
	lastSuccess time.Time

	group singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type KeySetOption func(*RemoteKeySet)

func WithHTTPClient(c *http.Client) KeySetOption {
	return func(k *RemoteKeySet) { k.client = c }
}

func WithKeySetLogger(l logrus.FieldLogger) KeySetOption {
	return func(k *RemoteKeySet) { k.log = l }
}

// WithMinRefreshInterval bounds how often a kid miss may trigger a refetch.
func WithMinRefreshInterval(d time.Duration) KeySetOption {
	return func(k *RemoteKeySet) { k.minRefresh = d }
}

// WithRefreshHook is called after every fetch attempt with its outcome.
func WithRefreshHook(fn func(err error)) KeySetOption {
	return func(k *RemoteKeySet) { k.onRefresh = fn }
}

func NewRemoteKeySet(uri string, opts ...KeySetOption) *RemoteKeySet {
	k := &RemoteKeySet{
		uri:        uri,
		client:     &http.Client{Timeout: defaultFetchTimeout},
		log:        logrus.StandardLogger(),
		minRefresh: defaultMinRefreshInterval,
		now:        time.Now,
		keys:       map[string]any{},
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Key returns the public key for kid. An empty kid resolves only when the
// set holds exactly one key.
func (k *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	_, err, _ := k.group.Do(flightKey, func() (any, error) {
		if _, ok := k.lookup(kid); ok {
			return nil, nil
		}
		if !k.refreshAllowed() {
			return nil, nil
		}
		// the fetch is shared by every waiter, so it outlives the caller that started it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultFetchTimeout)
		defer cancel()
		return nil, k.fetch(fctx)
	})
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh refetches the document now, sharing any fetch already in flight.
func (k *RemoteKeySet) Refresh(ctx context.Context) error {
	_, err, _ := k.group.Do(flightKey, func() (any, error) {
		return nil, k.fetch(ctx)
	})
	return err
}

// Start refreshes the set every interval until Close. A non-positive
// interval disables background refresh.
func (k *RemoteKeySet) Start(interval time.Duration) {
	if interval <= 0 || k.done != nil {
		return
	}
	k.done = make(chan struct{})
	go func() {
		defer close(k.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-k.stop:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), defaultFetchTimeout)
				if err := k.Refresh(ctx); err != nil {
					k.log.WithError(err).Warn("jwks periodic refresh failed")
				}
				cancel()
			}
		}
	}()
}

// Close stops the background refresher and waits for it to exit.
func (k *RemoteKeySet) Close() {
	k.stopOnce.Do(func() { close(k.stop) })
	if k.done != nil {
		<-k.done
	}
}

// Ready reports whether at least one fetch has succeeded.
func (k *RemoteKeySet) Ready() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return !k.lastSuccess.IsZero()
}

func (k *RemoteKeySet) lookup(kid string) (any, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if kid == "" && len(k.keys) == 1 {
		for _, key := range k.keys {
			return key, true
		}
	}
	key, ok := k.keys[kid]
	return key, ok
}

func (k *RemoteKeySet) refreshAllowed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.lastAttempt.IsZero() || k.now().Sub(k.lastAttempt) >= k.minRefresh
}

func (k *RemoteKeySet) fetch(ctx context.Context) (err error) {
	k.mu.Lock()
	k.lastAttempt = k.now()
	k.mu.Unlock()

	defer func() {
		if k.onRefresh != nil {
			k.onRefresh(err)
		}
	}()

	keys, err := k.download(ctx)
	if err != nil {
		k.log.WithError(err).WithField("jwks_uri", k.uri).Warn("jwks fetch failed; keeping previous keys")
		return err
	}

	k.mu.Lock()
	k.keys = keys
	k.lastSuccess = k.now()
	k.mu.Unlock()
	k.log.WithFields(logrus.Fields{"jwks_uri": k.uri, "keys": len(keys)}).Debug("jwks refreshed")
	return nil
}

func (k *RemoteKeySet) download(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBodyBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("jwks: decode: %w", err)
	}
	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		if !jwk.IsPublic() {
			continue
		}
		keys[jwk.KeyID] = jwk.Key
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks: no usable signing keys")
	}
	return keys, nil
}
