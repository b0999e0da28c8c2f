package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoginFSM(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		f := newLoginFSM(zap.NewNop())
		require.NoError(t, f.transition(stateSessionOpened))
		require.NoError(t, f.transition(stateAuthSubmitted))
		require.NoError(t, f.transition(stateAuthenticatedOK))
		assert.Equal(t, stateAuthenticatedOK, f.state())
	})

	t.Run("failed login can restart the sequence", func(t *testing.T) {
		f := newLoginFSM(zap.NewNop())
		require.NoError(t, f.transition(stateSessionOpened))
		require.NoError(t, f.transition(stateAuthSubmitted))
		require.NoError(t, f.transition(stateAuthenticationErr))
		require.NoError(t, f.transition(stateSessionOpened))
	})

	t.Run("cannot submit before opening a session", func(t *testing.T) {
		f := newLoginFSM(zap.NewNop())
		assert.ErrorIs(t, f.transition(stateAuthSubmitted), ErrInvalidLoginTransition)
	})

	t.Run("success is terminal", func(t *testing.T) {
		f := newLoginFSM(zap.NewNop())
		require.NoError(t, f.transition(stateSessionOpened))
		require.NoError(t, f.transition(stateAuthSubmitted))
		require.NoError(t, f.transition(stateAuthenticatedOK))
		assert.ErrorIs(t, f.transition(stateSessionOpened), ErrInvalidLoginTransition)
	})
}
