// Package run holds the identity and lifecycle of one end-to-end execution.
package run

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidTransition = fmt.Errorf("invalid status transition")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FSM guards the run status. A run moves pending -> running and from
// running to exactly one terminal status.
type FSM struct {
	mu          sync.Mutex
	Transitions map[Status]map[Status]struct{}

	current Status
	logger  *zap.Logger
}

type FSMOption func(*FSM)

func FSMWithLogger(logger *zap.Logger) FSMOption {
	return func(f *FSM) {
		f.logger = logger
	}
}

func NewFSM(opts ...FSMOption) *FSM {
	f := &FSM{
		current: StatusPending,
		logger:  zap.NewNop(),

		Transitions: map[Status]map[Status]struct{}{
			StatusPending: {
				StatusRunning:   {},
				StatusFailed:    {}, // Startup failure before any stage ran
				StatusCancelled: {},
			},
			StatusRunning: {
				StatusSucceeded: {},
				StatusFailed:    {},
				StatusCancelled: {},
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FSM) Current() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FSM) canTransition(to Status) bool {
	_, ok := f.Transitions[f.current][to]
	return ok
}

func (f *FSM) Transition(to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.canTransition(to) {
		f.logger.Error("invalid status transition",
			zap.String("from", string(f.current)),
			zap.String("to", string(to)),
		)
		return ErrInvalidTransition
	}
	previous := f.current
	f.current = to

	f.logger.Info("status transitioned",
		zap.String("status", string(f.current)),
		zap.String("from", string(previous)),
	)
	return nil
}

// Run identifies one execution of the pipeline. It is created at process
// start and owned exclusively by the orchestrator.
type Run struct {
	ID        string
	StartedAt time.Time
	Status    *FSM
}

// New builds a run with a timestamp-prefixed id so log and artifact names
// sort chronologically. The uuid suffix keeps two runs started within the
// same second from colliding.
func New(opts ...FSMOption) *Run {
	now := time.Now()
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return &Run{
		ID:        fmt.Sprintf("%s_%s", now.Format("20060102_150405"), suffix),
		StartedAt: now,
		Status:    NewFSM(opts...),
	}
}
