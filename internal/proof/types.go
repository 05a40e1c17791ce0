package proof

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
)

type State string

const (
	StateBuilt     State = "BUILT"
	StateSubmitted State = "SUBMITTED"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

func (s State) rank() int {
	switch s {
	case StateBuilt:
		return 1
	case StateSubmitted:
		return 2
	case StateSucceeded, StateFailed:
		return 3
	}
	return 0
}

func (s State) Terminal() bool { return s.rank() == 3 }

// CanMoveTo reports whether a job in s may be recorded as next.
func (s State) CanMoveTo(next State) bool {
	return next.rank() > s.rank()
}

type (
	// Request is everything needed to run one job.
	Request struct {
		Job           job.Job
		Target        job.TargetOutput
		ArgumentsPath string
		ProofPath     string
		// Generate rebuilds the argument bundle before proving. Otherwise the
		// bundle at ArgumentsPath is used as is.
		Generate bool
	}

	// Record is the persisted view of a job.
	Record struct {
		Id            string           `json:"id"`
		Label         string           `json:"label"`
		Height        uint64           `json:"height"`
		BatchSize     uint64           `json:"batch_size"`
		Target        job.TargetOutput `json:"target_utxo"`
		Attempt       int              `json:"attempt"`
		State         State            `json:"state,omitempty"`
		Steps         []job.Step       `json:"steps,omitempty"`
		ArgumentsPath string           `json:"arguments_path"`
		ProofPath     string           `json:"proof_path"`
		Error         string           `json:"error,omitempty"`
		ErrorKind     string           `json:"error_kind,omitempty"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}
)

func (r Request) Id() string {
	return computeId(fmt.Sprintf("%s|%s", r.Job.Label(), r.Target))
}

func newRecord(req Request, now time.Time) *Record {
	return &Record{
		Id:            req.Id(),
		Label:         req.Job.Label(),
		Height:        req.Job.Height,
		BatchSize:     req.Job.BatchSize,
		Target:        req.Target,
		ArgumentsPath: req.ArgumentsPath,
		ProofPath:     req.ProofPath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func computeId(key string) string {
	hash := md5.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}
