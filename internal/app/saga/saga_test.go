package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCompensatesInReverse(t *testing.T) {
	var trail []string
	boom := errors.New("boom")
	step := func(name string, fail bool) Step {
		return Step{
			Name: name,
			Execute: func(context.Context) error {
				trail = append(trail, "do "+name)
				if fail {
					return boom
				}
				return nil
			},
			Compensate: func(_ context.Context, cause error) error {
				assert.ErrorIs(t, cause, boom)
				trail = append(trail, "undo "+name)
				return nil
			},
		}
	}

	err := Run(context.Background(), step("a", false), step("b", false), step("c", true), step("d", false))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "c", failure.Step)
	assert.NoError(t, failure.Compensation)
	assert.Equal(t, []string{"do a", "do b", "do c", "undo b", "undo a"}, trail)
}

func TestRunReportsCompensationFailure(t *testing.T) {
	undo := errors.New("undo failed")
	err := Run(context.Background(),
		Step{Name: "persist", Execute: func(context.Context) error { return nil }, Compensate: func(context.Context, error) error { return undo }},
		Step{Name: "charge", Execute: func(context.Context) error { return errors.New("declined") }},
	)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, failure.Compensation, undo)
	assert.Contains(t, err.Error(), "compensation")
}

func TestRunSucceeds(t *testing.T) {
	assert.NoError(t, Run(context.Background(), Step{Name: "only", Execute: func(context.Context) error { return nil }}))
}
