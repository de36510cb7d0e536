package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManager_FittedLifecycle(t *testing.T) {
	s := NewStateManager()

	assert.False(t, s.IsFitted())
	require.Error(t, s.RequireFitted())

	s.SetDimensions(3, 100)
	s.SetLatents(2)
	s.SetFitted()

	assert.True(t, s.IsFitted())
	require.NoError(t, s.RequireFitted())

	f, n := s.GetDimensions()
	assert.Equal(t, 3, f)
	assert.Equal(t, 100, n)
	assert.Equal(t, 2, s.GetLatents())
}

func TestStateManager_ResetClearsState(t *testing.T) {
	s := NewStateManager()
	s.SetDimensions(5, 10)
	s.SetLatents(1)
	s.SetFitted()

	s.Reset()

	assert.False(t, s.IsFitted())
	f, n := s.GetDimensions()
	assert.Equal(t, 0, f)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.GetLatents())
}
