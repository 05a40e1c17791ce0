package job

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Each one is terminal for the job and is never retried here.
var (
	ErrInvalidJob          = errors.New("invalid job")
	ErrGeneration          = errors.New("chain data generation failed")
	ErrSerialization       = errors.New("argument bundle could not be written")
	ErrExecutableNotFound  = errors.New("prover executable not found")
	ErrArgumentsNotFound   = errors.New("argument bundle not found")
	ErrProverProcessFailed = errors.New("prover process failed")
	ErrMissingOutput       = errors.New("prover succeeded but proof file is missing")
	ErrTimedOut            = errors.New("prover timed out")
	ErrCancelled           = errors.New("prover cancelled")
)

var kinds = []error{
	ErrInvalidJob,
	ErrGeneration,
	ErrSerialization,
	ErrExecutableNotFound,
	ErrArgumentsNotFound,
	ErrProverProcessFailed,
	ErrMissingOutput,
	ErrTimedOut,
	ErrCancelled,
}

var kindNames = map[error]string{
	ErrInvalidJob:          "InvalidJob",
	ErrGeneration:          "GenerationError",
	ErrSerialization:       "SerializationError",
	ErrExecutableNotFound:  "ExecutableNotFound",
	ErrArgumentsNotFound:   "ArgumentsNotFound",
	ErrProverProcessFailed: "ProverProcessFailed",
	ErrMissingOutput:       "MissingOutput",
	ErrTimedOut:            "TimedOut",
	ErrCancelled:           "Cancelled",
}

// Error carries enough context about a failed job to act on it from logs.
type Error struct {
	Kind  error
	Job   Job
	Path  string
	Steps []Step
	Err   error
}

func NewError(kind error, job Job, path string, err error) *Error {
	return &Error{Kind: kind, Job: job, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " [height=%d batch_size=%d", e.Job.Height, e.Job.BatchSize)
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	b.WriteString("]")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure kind of err, or nil when err is not a job error.
func KindOf(err error) error {
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a stable name for the failure kind of err, or "" when err
// is not a job error.
func KindName(err error) string {
	return kindNames[KindOf(err)]
}
