package parallel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinLocAbandonedByFinalize(t *testing.T) {
	world := NewLocalWorld(3)
	errs := make(chan error, 2)
	for r := 0; r < 2; r++ {
		go func() {
			_, err := world.Rank(r).AllreduceMinLoc([]float64{float64(r)})
			errs <- err
		}()
	}

	// rank 2 fails before the reduction and finalizes
	require.NoError(t, world.Rank(2).Finalize())
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrAbandoned)
		case <-time.After(5 * time.Second):
			t.Fatal("waiting rank was not released")
		}
	}

	_, err := world.Rank(0).AllreduceMinLoc([]float64{1})
	assert.ErrorIs(t, err, ErrAbandoned)
	_, err = world.Rank(2).AllreduceMinLoc([]float64{1})
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestMinLocSurvivesFinalizeAfterCompletion(t *testing.T) {
	world := NewLocalWorld(2)
	done := make(chan []int, 1)
	go func() {
		owners, err := world.Rank(1).AllreduceMinLoc([]float64{1})
		assert.NoError(t, err)
		done <- owners
	}()

	owners, err := world.Rank(0).AllreduceMinLoc([]float64{2})
	require.NoError(t, err)
	// rank 0 leaves as soon as the generation completed
	require.NoError(t, world.Rank(0).Finalize())
	assert.Equal(t, []int{1}, owners)
	assert.Equal(t, []int{1}, <-done)
}
