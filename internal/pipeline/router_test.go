package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/adapter"
	"github.com/alanyoungcy/tradexec/internal/domain"
)

type stubLivePolicy bool

func (p stubLivePolicy) LiveEnabled() bool { return bool(p) }

func TestRouterSelectsConfiguredMode(t *testing.T) {
	paper := &recordingAdapter{}
	r := NewRouter(ModePaper, nil, map[ExecutionMode]adapter.ExecutionAdapter{
		ModePaper:  paper,
		ModeShadow: &recordingAdapter{},
	})

	target, err := r.Route(domain.Order{})
	require.NoError(t, err)
	assert.Same(t, adapter.ExecutionAdapter(paper), target)
	assert.Equal(t, ModePaper, r.Mode())
}

func TestRouterRefusesLiveWithoutPolicy(t *testing.T) {
	r := NewRouter(ModeLive, nil, map[ExecutionMode]adapter.ExecutionAdapter{
		ModeLive: &recordingAdapter{},
	})

	_, err := r.Route(domain.Order{})
	require.ErrorIs(t, err, domain.ErrLiveNotEnabled)
}

func TestRouterRefusesLiveWhenPolicyDenies(t *testing.T) {
	r := NewRouter(ModeLive, stubLivePolicy(false), map[ExecutionMode]adapter.ExecutionAdapter{
		ModeLive: &recordingAdapter{},
	})

	_, err := r.Route(domain.Order{})
	require.ErrorIs(t, err, domain.ErrLiveNotEnabled)
}

func TestRouterAllowsLiveWhenPolicyGrants(t *testing.T) {
	live := &recordingAdapter{}
	r := NewRouter(ModeLive, stubLivePolicy(true), map[ExecutionMode]adapter.ExecutionAdapter{
		ModeLive: live,
	})

	target, err := r.Route(domain.Order{})
	require.NoError(t, err)
	assert.Same(t, adapter.ExecutionAdapter(live), target)
}

func TestRouterErrorsOnUnregisteredMode(t *testing.T) {
	r := NewRouter(ModeShadow, nil, map[ExecutionMode]adapter.ExecutionAdapter{
		ModePaper: &recordingAdapter{},
	})

	_, err := r.Route(domain.Order{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadow")
}
