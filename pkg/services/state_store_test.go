package services

import (
	"context"
	"testing"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
	testdb "github.com/faultmaven/faultmaven/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntStateStore(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := NewEntStateStore(client.Client)
	ctx := context.Background()

	c := createTestCase(t, client.Client)

	t.Run("Load returns nil before the first save", func(t *testing.T) {
		st, err := store.Load(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("Load returns ErrNotFound for missing case", func(t *testing.T) {
		_, err := store.Load(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Save then Load round-trips the state", func(t *testing.T) {
		st := state.New()
		st.ProblemStatement = "edge gateway returns 502s"
		st.CurrentPhase = state.PhaseBlastRadius
		st.SetMilestone(state.MilestoneProblemStatementConfirmed)
		st.Hypotheses = append(st.Hypotheses, state.Hypothesis{
			ID:          "hyp-001",
			Statement:   "The deploy changed the upstream timeout",
			Category:    state.CategoryConfig,
			Status:      state.HypothesisActive,
			Confidence:  0.55,
			CreatedTurn: 1,
		})

		require.NoError(t, store.Save(ctx, c.ID, st))

		loaded, err := store.Load(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, state.PhaseBlastRadius, loaded.CurrentPhase)
		assert.True(t, loaded.MilestoneDone(state.MilestoneProblemStatementConfirmed))
		require.Len(t, loaded.Hypotheses, 1)
		assert.Equal(t, "hyp-001", loaded.Hypotheses[0].ID)
		assert.InDelta(t, 0.55, loaded.Hypotheses[0].Confidence, 1e-9)
	})

	t.Run("Save overwrites the previous snapshot", func(t *testing.T) {
		st, err := store.Load(ctx, c.ID)
		require.NoError(t, err)
		st.CurrentPhase = state.PhaseHypothesis

		require.NoError(t, store.Save(ctx, c.ID, st))

		loaded, err := store.Load(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, state.PhaseHypothesis, loaded.CurrentPhase)
	})

	t.Run("Save to missing case returns ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, "nonexistent", state.New()), ErrNotFound)
	})
}

func TestMemStateStore(t *testing.T) {
	store := NewMemStateStore()
	ctx := context.Background()

	t.Run("Load returns nil when absent", func(t *testing.T) {
		st, err := store.Load(ctx, "case-1")
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("callers never share state with the store", func(t *testing.T) {
		st := state.New()
		st.CurrentPhase = state.PhaseTimeline
		require.NoError(t, store.Save(ctx, "case-1", st))

		// Mutating the original after Save must not leak in.
		st.CurrentPhase = state.PhaseValidation

		first, err := store.Load(ctx, "case-1")
		require.NoError(t, err)
		assert.Equal(t, state.PhaseTimeline, first.CurrentPhase)

		// Mutating a loaded copy must not leak back.
		first.CurrentPhase = state.PhaseSolution

		second, err := store.Load(ctx, "case-1")
		require.NoError(t, err)
		assert.Equal(t, state.PhaseTimeline, second.CurrentPhase)
	})

	t.Run("Delete removes the entry", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "case-2", state.New()))
		store.Delete("case-2")

		st, err := store.Load(ctx, "case-2")
		require.NoError(t, err)
		assert.Nil(t, st)
	})
}
