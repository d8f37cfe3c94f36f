package pipeline

import (
	"fmt"

	"github.com/alanyoungcy/tradexec/internal/adapter"
	"github.com/alanyoungcy/tradexec/internal/domain"
)

// ExecutionMode selects which adapter family orders are routed to. The mode
// is fixed at startup from configuration.
type ExecutionMode string

const (
	ModePaper  ExecutionMode = "paper"
	ModeShadow ExecutionMode = "shadow"
	ModeLive   ExecutionMode = "live"
)

// LivePolicy reports whether live trading is currently enabled. The flag is
// granted by an external governance layer; the router only reads it.
type LivePolicy interface {
	LiveEnabled() bool
}

// Router maps the configured execution mode to a registered adapter. Routing
// to live additionally requires the governance flag; without it the route is
// refused outright, never silently downgraded to paper.
type Router struct {
	mode     ExecutionMode
	policy   LivePolicy
	adapters map[ExecutionMode]adapter.ExecutionAdapter
}

// NewRouter creates a Router for the given mode over the registered adapters.
func NewRouter(mode ExecutionMode, policy LivePolicy, adapters map[ExecutionMode]adapter.ExecutionAdapter) *Router {
	return &Router{mode: mode, policy: policy, adapters: adapters}
}

// Mode returns the configured execution mode.
func (r *Router) Mode() ExecutionMode { return r.mode }

// Route selects the adapter for the order.
func (r *Router) Route(order domain.Order) (adapter.ExecutionAdapter, error) {
	if r.mode == ModeLive {
		if r.policy == nil || !r.policy.LiveEnabled() {
			return nil, fmt.Errorf("router: live routing refused: %w", domain.ErrLiveNotEnabled)
		}
	}
	a, ok := r.adapters[r.mode]
	if a == nil || !ok {
		return nil, fmt.Errorf("router: no adapter registered for mode %q", r.mode)
	}
	return a, nil
}
