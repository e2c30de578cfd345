package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookup struct{ ID string }

func (lookup) Key() string { return "test.lookup" }

func TestAsk(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[lookup, map[string]string](bus, "test.lookup", HandlerFunc[lookup, map[string]string](func(_ context.Context, q lookup) (map[string]string, error) {
		return map[string]string{"id": q.ID}, nil
	}))

	got, err := Ask[lookup, map[string]string](context.Background(), bus, lookup{ID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "b1", got["id"])

	_, err = Ask[lookup, string](context.Background(), bus, lookup{})
	assert.ErrorIs(t, err, ErrResultType)
}
