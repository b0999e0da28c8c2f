package pipeline

import (
	"errors"
	"fmt"
)

// Kind tags a failure with the stage taxonomy scripted callers branch on.
type Kind string

const (
	KindConfig    Kind = "config"
	KindAuth      Kind = "auth"
	KindAcquire   Kind = "acquire"
	KindTransform Kind = "transform"
	KindExport    Kind = "export"
	KindCancelled Kind = "cancelled"
)

// Stage names one pipeline step.
type Stage string

const (
	StageConfig    Stage = "config"
	StagePrompt    Stage = "prompt"
	StageLogin     Stage = "login"
	StageAcquire   Stage = "acquire"
	StageTransform Stage = "transform"
	StageExport    Stage = "export"
)

// Failure is the tagged terminal outcome of an unsuccessful run. Every
// stage either returns a definite result or one of these; the pipeline
// never continues past a failed stage.
type Failure struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s stage failed (%s): %v", f.Stage, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s stage failed (%s)", f.Stage, f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ExitCode maps the failure kind to a distinct process exit code.
func (f *Failure) ExitCode() int {
	switch f.Kind {
	case KindConfig:
		return 2
	case KindAuth:
		return 3
	case KindAcquire:
		return 4
	case KindTransform:
		return 5
	case KindExport:
		return 6
	case KindCancelled:
		return 7
	}
	return 1
}

func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

func newFailure(kind Kind, stage Stage, err error) *Failure {
	return &Failure{
		Kind:  kind,
		Stage: stage,
		Err:   err,
	}
}
