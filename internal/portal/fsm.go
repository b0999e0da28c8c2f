package portal

import (
	"sync"

	"go.uber.org/zap"
)

type loginState string

const (
	stateIdle              loginState = "idle"
	stateSessionOpened     loginState = "session_opened"
	stateAuthSubmitted     loginState = "authentication_submitted"
	stateAuthenticatedOK   loginState = "authenticated_ok"
	stateAuthenticationErr loginState = "authentication_failed"
)

// loginFSM tracks the login sequence so an out-of-order driver bug shows
// up as an invalid transition instead of a confusing portal error.
type loginFSM struct {
	mu          sync.Mutex
	transitions map[loginState]map[loginState]struct{}

	current loginState
	logger  *zap.Logger
}

func newLoginFSM(logger *zap.Logger) *loginFSM {
	return &loginFSM{
		current: stateIdle,
		logger:  logger,

		transitions: map[loginState]map[loginState]struct{}{
			stateIdle: {
				stateSessionOpened: {},
			},
			stateSessionOpened: {
				stateAuthSubmitted: {},
			},
			stateAuthSubmitted: {
				stateAuthenticatedOK:   {},
				stateAuthenticationErr: {},
			},
			stateAuthenticationErr: {
				// A transient navigation failure is retried once from the
				// top of the sequence.
				stateSessionOpened: {},
			},
		},
	}
}

func (f *loginFSM) transition(to loginState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.transitions[f.current][to]; !ok {
		f.logger.Error("invalid login transition",
			zap.String("from", string(f.current)),
			zap.String("to", string(to)),
		)
		return ErrInvalidLoginTransition
	}

	previous := f.current
	f.current = to
	f.logger.Debug("login state transitioned",
		zap.String("state", string(f.current)),
		zap.String("from", string(previous)),
	)
	return nil
}

func (f *loginFSM) state() loginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
