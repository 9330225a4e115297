package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/invalidate"
)

func TestWithStateRoundTrips(t *testing.T) {
	state := &State{Task: ids.TaskID(7), Pending: invalidate.NewAccumulator()}
	ctx := WithState(context.Background(), state)

	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Equal(t, state, got)
}

func TestFromMissingStateReportsAbsent(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestNextSlotPositionIncrementsFromZero(t *testing.T) {
	state := &State{}
	assert.Equal(t, 0, state.NextSlotPosition())
	assert.Equal(t, 1, state.NextSlotPosition())
	assert.Equal(t, 2, state.NextSlotPosition())
}
