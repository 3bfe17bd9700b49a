package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allContexts() []Context {
	ctxs := make([]Context, 0, 16)
	for _, green := range []bool{false, true} {
		for _, red := range []bool{false, true} {
			for _, text := range []bool{false, true} {
				for _, fwd := range []bool{false, true} {
					ctxs = append(ctxs, Context{
						IsGreenListed: green,
						IsRedListed:   red,
						HasText:       text,
						IsForward:     fwd,
					})
				}
			}
		}
	}
	return ctxs
}

func TestNextIsTotalAndDeterministic(t *testing.T) {
	states := []State{
		StateChannelSelect, StateActionSelect, StateTextHandling,
		StateNicknameSelect, StateCustomText, StatePreview, StateCompleted,
	}
	for _, s := range states {
		for _, ctx := range allContexts() {
			first, err := Next(s, ctx)
			require.NoError(t, err, "state %s", s)
			second, err := Next(s, ctx)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		}
	}
}

func TestNextCompletedIsTerminal(t *testing.T) {
	for _, ctx := range allContexts() {
		next, err := Next(StateCompleted, ctx)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, next)
	}
}

func TestNextGreenListedAlwaysCompletes(t *testing.T) {
	for _, ctx := range allContexts() {
		if !ctx.IsGreenListed {
			continue
		}
		next, err := Next(StateChannelSelect, ctx)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, next)
	}
}

func TestNextRedListed(t *testing.T) {
	next, err := Next(StateChannelSelect, Context{IsRedListed: true, HasText: true})
	require.NoError(t, err)
	assert.Equal(t, StateTextHandling, next)

	next, err = Next(StateChannelSelect, Context{IsRedListed: true})
	require.NoError(t, err)
	assert.Equal(t, StateNicknameSelect, next)
}

func TestNextUnclassifiedGoesToActionSelect(t *testing.T) {
	next, err := Next(StateChannelSelect, Context{HasText: true})
	require.NoError(t, err)
	assert.Equal(t, StateActionSelect, next)
}

func TestNextActionSelect(t *testing.T) {
	next, err := Next(StateActionSelect, Context{IsForward: true})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, next)

	next, err = Next(StateActionSelect, Context{HasText: true})
	require.NoError(t, err)
	assert.Equal(t, StateTextHandling, next)

	next, err = Next(StateActionSelect, Context{})
	require.NoError(t, err)
	assert.Equal(t, StateNicknameSelect, next)
}

func TestNextLinearTail(t *testing.T) {
	steps := map[State]State{
		StateTextHandling:   StateNicknameSelect,
		StateNicknameSelect: StateCustomText,
		StateCustomText:     StatePreview,
		StatePreview:        StateCompleted,
	}
	for from, want := range steps {
		next, err := Next(from, Context{})
		require.NoError(t, err)
		assert.Equal(t, want, next)
	}
}

func TestNextUnknownState(t *testing.T) {
	_, err := Next(State("bogus"), Context{})
	require.Error(t, err)
	var invalid *InvalidStateError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, State("bogus"), invalid.State)
}
