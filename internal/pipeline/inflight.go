package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// inflightEntry tracks one idempotency key: either an execution in progress
// (done still open) or a recorded result.
type inflightEntry struct {
	done     chan struct{}
	result   *domain.PipelineResult
	recorded time.Time
}

// Registry serializes pipeline executions per idempotency key. The first
// caller for a key becomes the leader and runs the pipeline; concurrent
// duplicates block until the leader commits and then receive the identical
// recorded result. Results are also mirrored into an optional external cache
// so duplicates collapse across restarts.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
	cache   domain.ResultCache // optional
	ttl     time.Duration      // retention for recorded results
	logger  *slog.Logger
}

// NewRegistry creates a Registry. cache may be nil; ttl bounds how long
// recorded results are kept in memory and in the cache.
func NewRegistry(cache domain.ResultCache, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*inflightEntry),
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "inflight_registry")),
	}
}

// Begin claims the key for execution. When the caller is the leader it
// receives a non-nil commit function that must be called exactly once with
// the final result. Otherwise Begin blocks until the leader commits (or ctx
// ends) and returns the recorded result.
//
// The registry lock is only ever held for map operations; the external cache
// lookup happens after the key is claimed, so one key's network round-trip
// cannot stall unrelated keys.
func (r *Registry) Begin(ctx context.Context, key string) (prior *domain.PipelineResult, commit func(domain.PipelineResult), err error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		select {
		case <-e.done:
			return e.result, nil, nil
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	// Claim the key with an in-flight entry before consulting the cache.
	// Duplicates arriving during the lookup block on done as usual.
	e := &inflightEntry{done: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	// Consult the external cache before running the pipeline, so results
	// recorded by a previous process still short-circuit.
	if r.cache != nil {
		if cached, cerr := r.cache.Get(ctx, key); cerr != nil {
			r.logger.WarnContext(ctx, "result cache lookup failed",
				slog.String("idempotency_key", key),
				slog.String("error", cerr.Error()),
			)
		} else if cached != nil {
			r.mu.Lock()
			e.result = cached
			e.recorded = time.Now()
			close(e.done)
			r.mu.Unlock()
			return cached, nil, nil
		}
	}

	commit = func(res domain.PipelineResult) {
		r.mu.Lock()
		e.result = &res
		e.recorded = time.Now()
		close(e.done)
		r.mu.Unlock()

		if r.cache != nil {
			// Cache writes use a detached context: the leader's request may
			// already be concluding.
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := r.cache.Set(cctx, key, res, r.ttl); cerr != nil {
				r.logger.Warn("result cache write failed",
					slog.String("idempotency_key", key),
					slog.String("error", cerr.Error()),
				)
			}
		}
	}
	return nil, commit, nil
}

// Cleanup evicts recorded results older than the retention TTL. In-flight
// entries are never evicted. Should be called periodically.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, e := range r.entries {
		if e.result != nil && now.Sub(e.recorded) >= r.ttl {
			delete(r.entries, key)
		}
	}
}
