package job

import (
	"encoding/hex"
	"fmt"
	"math"
)

const txidLength = 64

// Job is one proof request: batchSize consecutive blocks starting at height.
type Job struct {
	Height    uint64 `json:"height"`
	BatchSize uint64 `json:"batch_size"`
}

func New(height, batchSize uint64) Job {
	return Job{Height: height, BatchSize: batchSize}
}

// Label is a descriptive name for logs. Nothing parses it back.
func (j Job) Label() string {
	return fmt.Sprintf("Job(height='%d', blocks=%d)", j.Height, j.BatchSize)
}

func (j Job) Validate() error {
	if j.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", j.BatchSize)
	}
	if j.Height+j.BatchSize < j.Height {
		return fmt.Errorf("height %d + batch size %d overflows", j.Height, j.BatchSize)
	}
	return nil
}

// TargetOutput is the transaction output the proof attests to. Whether it
// exists in the job's range is for the generator and prover to decide.
type TargetOutput struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (t TargetOutput) String() string {
	return fmt.Sprintf("%s:%d", t.Txid, t.Vout)
}

func (t TargetOutput) Validate() error {
	if len(t.Txid) != txidLength {
		return fmt.Errorf("txid must be %d hex characters, got %d", txidLength, len(t.Txid))
	}
	if _, err := hex.DecodeString(t.Txid); err != nil {
		return fmt.Errorf("txid is not hex: %v", err)
	}
	return nil
}

// ParseVout narrows an output index read as a wider integer.
func ParseVout(vout uint64) (uint32, error) {
	if vout > math.MaxUint32 {
		return 0, fmt.Errorf("vout %d exceeds %d", vout, uint32(math.MaxUint32))
	}
	return uint32(vout), nil
}

// CheckInput validates a job and its target, returning an ErrInvalidJob
// error carrying path.
func CheckInput(j Job, target TargetOutput, path string) error {
	if err := j.Validate(); err != nil {
		return NewError(ErrInvalidJob, j, path, err)
	}
	if err := target.Validate(); err != nil {
		return NewError(ErrInvalidJob, j, path, err)
	}
	return nil
}
