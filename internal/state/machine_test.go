package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_HappyPath(t *testing.T) {
	ctx := context.Background()
	var seen []string
	p := NewPipeline("req-1", func(id, from, to string) {
		assert.Equal(t, "req-1", id)
		seen = append(seen, to)
	})

	assert.Equal(t, StateValidating, p.Current())

	for _, ev := range []string{
		EventValidated,
		EventRouteReceived,
		EventEnergyEstimate,
		EventStationsFound,
		EventPersisted,
		EventComplete,
	} {
		require.NoError(t, p.Trigger(ctx, ev))
	}

	assert.Equal(t, StateDone, p.Current())
	assert.True(t, p.IsTerminal())
	assert.Equal(t, []string{
		StateRoutingRequested,
		StateRouteReceived,
		StateEnergyEstimated,
		StateStationsScanned,
		StatePersisted,
		StateDone,
	}, seen)
	assert.Len(t, p.History(), 6)
	assert.Empty(t, p.FailedFrom())
}

func TestPipeline_FailFromAnyState(t *testing.T) {
	ctx := context.Background()
	steps := []string{EventValidated, EventRouteReceived, EventEnergyEstimate, EventStationsFound, EventPersisted}

	for n := 0; n <= len(steps); n++ {
		p := NewPipeline("req", nil)
		for _, ev := range steps[:n] {
			require.NoError(t, p.Trigger(ctx, ev))
		}
		before := p.Current()

		p.Fail(ctx)

		assert.Equal(t, StateFailed, p.Current())
		assert.Equal(t, before, p.FailedFrom())
	}
}

func TestPipeline_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline("req", nil)
	p.Fail(ctx)

	// 再次失败不会报错，也不会改变状态
	p.Fail(ctx)
	assert.Equal(t, StateFailed, p.Current())
	assert.Error(t, p.Trigger(ctx, EventValidated))
}

func TestPipeline_RejectsOutOfOrderEvent(t *testing.T) {
	p := NewPipeline("req", nil)
	err := p.Trigger(context.Background(), EventPersisted)
	require.Error(t, err)
	assert.Equal(t, StateValidating, p.Current())
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	p := m.Start("a")
	m.Start("b")

	assert.Equal(t, 2, m.ActiveCount())
	require.NoError(t, p.Trigger(context.Background(), EventValidated))
	assert.Equal(t, map[string]string{"a": StateRoutingRequested, "b": StateValidating}, m.GetAllStates())

	m.Finish("a")
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, map[string]string{"b": StateValidating}, m.GetAllStates())
}

func TestPipeline_CancelledContextStillTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline("req", nil)
	require.NoError(t, p.Trigger(ctx, EventValidated))
	require.NoError(t, p.Trigger(ctx, EventRouteReceived))
	assert.Equal(t, StateRouteReceived, p.Current())

	p.Fail(ctx)
	assert.Equal(t, StateFailed, p.Current())
	assert.Equal(t, StateRouteReceived, p.FailedFrom())
	assert.True(t, p.IsTerminal())

	hist := p.History()
	require.Len(t, hist, 3)
	assert.Equal(t, StateFailed, hist[2].To)
}

func TestPipeline_ExpiredDeadlineReachesDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	p := NewPipeline("req", nil)
	for _, ev := range []string{
		EventValidated, EventRouteReceived, EventEnergyEstimate,
		EventStationsFound, EventPersisted, EventComplete,
	} {
		require.NoError(t, p.Trigger(ctx, ev))
	}
	assert.Equal(t, StateDone, p.Current())
	assert.Empty(t, p.FailedFrom())
}
