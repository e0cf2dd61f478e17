// internal/secret/secret.go
//
// Secret references in configuration values.
//
// Context
// -------
//   - A config value such as `database.password` may hold a plain string or
//     a Vault reference: `vault:<mount>/<path>#<key>`, for example
//     `vault:secret/binder/db#password`.
//   - Resolver turns references into plain strings by reading KV-v2 secrets.
//     Plain values pass through untouched, so local setups need no Vault.
//   - Results are cached per reference for the resolver's TTL, in a bounded
//     LRU.
//   - Vault reads go through a circuit breaker: after repeated failures the
//     resolver fails fast until the cool-down elapses.
//
// Public workflow
// ---------------
//  1. res, err := secret.NewVault(ctx, 5*time.Minute)   // during boot.
//  2. pw,  err := res.Resolve(ctx, cfg.Database.Password)
//
// The Vault client reads VAULT_ADDR and VAULT_TOKEN from the environment and
// renews its token in the background until ctx is cancelled.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/cache"
)

// Prefix marks a value as a Vault reference.
const Prefix = "vault:"

// maxCached bounds the resolver cache.
const maxCached = 256

var (
	// ErrBadRef is returned for references that do not parse.
	ErrBadRef = errors.New("secret: malformed reference")
	// ErrKeyNotFound is returned when the secret lacks the referenced key.
	ErrKeyNotFound = errors.New("secret: key not found")
)

//
// SECTION 1.  References
//

// Ref is a parsed `vault:<mount>/<path>#<key>` reference.
type Ref struct {
	Mount string
	Path  string
	Key   string
}

func (r Ref) String() string { return Prefix + r.Mount + "/" + r.Path + "#" + r.Key }

// IsRef reports whether v is a Vault reference.
func IsRef(v string) bool { return strings.HasPrefix(v, Prefix) }

// ParseRef parses a Vault reference.  Mount, path, and key are all required.
func ParseRef(v string) (Ref, error) {
	if !IsRef(v) {
		return Ref{}, fmt.Errorf("%w: missing %q prefix", ErrBadRef, Prefix)
	}
	body := strings.TrimPrefix(v, Prefix)

	loc, key, ok := strings.Cut(body, "#")
	if !ok || key == "" {
		return Ref{}, fmt.Errorf("%w: %q has no #key", ErrBadRef, v)
	}
	mount, path, ok := strings.Cut(loc, "/")
	if !ok || mount == "" || path == "" {
		return Ref{}, fmt.Errorf("%w: %q needs <mount>/<path>", ErrBadRef, v)
	}
	return Ref{Mount: mount, Path: path, Key: key}, nil
}

//
// SECTION 2.  Resolver
//

// FetchFunc reads the data of one KV-v2 secret.
type FetchFunc func(ctx context.Context, mount, path string) (map[string]any, error)

// Resolver is safe for concurrent use.
type Resolver struct {
	fetch FetchFunc
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache *cache.LRU[Ref, cached]
}

type cached struct {
	val string
	exp time.Time
}

// NewResolver returns a resolver over fetch.  ttl <= 0 disables caching.
func NewResolver(fetch FetchFunc, ttl time.Duration) *Resolver {
	return &Resolver{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
		cache: cache.New[Ref, cached](maxCached),
	}
}

// Resolve returns v unchanged unless it is a Vault reference, in which case
// the referenced string is returned.
func (r *Resolver) Resolve(ctx context.Context, v string) (string, error) {
	if !IsRef(v) {
		return v, nil
	}
	ref, err := ParseRef(v)
	if err != nil {
		return "", err
	}

	if r.ttl > 0 {
		r.mu.Lock()
		cv, ok := r.cache.Get(ref)
		if ok && !r.now().Before(cv.exp) {
			r.cache.Remove(ref)
			ok = false
		}
		r.mu.Unlock()
		if ok {
			return cv.val, nil
		}
	}

	data, err := r.fetch(ctx, ref.Mount, ref.Path)
	if err != nil {
		return "", fmt.Errorf("secret: read %s/%s: %w", ref.Mount, ref.Path, err)
	}
	raw, ok := data[ref.Key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, ref)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret: value at %s is %T, not a string", ref, raw)
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache.Add(ref, cached{val: val, exp: r.now().Add(r.ttl)})
		r.mu.Unlock()
	}
	return val, nil
}

//
// SECTION 3.  Vault backend
//

// NewVault builds a resolver backed by HashiCorp Vault and starts the token
// renewal loop.
func NewVault(ctx context.Context, ttl time.Duration) (*Resolver, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	cli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		cli.SetToken(tok)
	}

	go renewLoop(ctx, cli)

	fetch := Breaker("vault", 3, 30*time.Second, func(ctx context.Context, mount, path string) (map[string]any, error) {
		sec, err := cli.KVv2(mount).Get(ctx, path)
		if err != nil {
			return nil, err
		}
		return sec.Data, nil
	})
	return NewResolver(fetch, ttl), nil
}

// Breaker wraps fetch in a circuit breaker that opens after maxFailures
// consecutive errors and half-opens again after cooldown.  While open, the
// returned FetchFunc fails with gobreaker.ErrOpenState without calling fetch.
func Breaker(name string, maxFailures uint32, cooldown time.Duration, fetch FetchFunc) FetchFunc {
	log := zap.L().Named(name)
	cb := gobreaker.NewCircuitBreaker[map[string]any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return func(ctx context.Context, mount, path string) (map[string]any, error) {
		return cb.Execute(func() (map[string]any, error) {
			return fetch(ctx, mount, path)
		})
	}
}

func renewLoop(ctx context.Context, cli *vault.Client) {
	log := zap.L().Named("vault")
	for ctx.Err() == nil {
		sec, err := cli.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			log.Warn("token renew self failed", zap.Error(err))
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			log.Info("token is not renewable, sleeping")
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := cli.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
		})
		if err != nil {
			log.Warn("lifetime watcher init failed", zap.Error(err))
			backoff(ctx, 30*time.Second)
			continue
		}

		watch(ctx, watcher, log)
		backoff(ctx, 15*time.Second)
	}
}

// watch blocks until the watcher stops or ctx is done.
func watch(ctx context.Context, w *vault.LifetimeWatcher, log *zap.Logger) {
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				log.Warn("token renewal stopped", zap.Error(err))
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				log.Debug("token renewed", zap.Int("ttl_seconds", ev.Secret.Auth.LeaseDuration))
			}
		}
	}
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
