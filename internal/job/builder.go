package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type Mode string

const ModeFull Mode = "full"

// GenerateRequest asks the generator for the blocks in
// [InitialHeight, InitialHeight+NumBlocks) and the chain state anchoring them.
type GenerateRequest struct {
	Mode          Mode   `json:"mode"`
	InitialHeight uint64 `json:"initial_height"`
	NumBlocks     uint64 `json:"num_blocks"`
	Fast          bool   `json:"fast"`
	MMRRoots      bool   `json:"mmr_roots"`
}

// Generator produces chain data for a height range.
type Generator interface {
	Generate(ctx context.Context, request GenerateRequest) (*ChainData, error)
}

// Builder turns a job and target output into a persisted ArgumentBundle.
type Builder struct {
	generator Generator
	log       *logrus.Entry
}

func NewBuilder(generator Generator, log *logrus.Entry) *Builder {
	return &Builder{generator: generator, log: log}
}

// Build fetches full chain data for the job, without MMR roots since the
// prover derives those itself, and writes the bundle to path.
func (b *Builder) Build(ctx context.Context, job Job, target TargetOutput, path string) (*ArgumentBundle, error) {
	if err := CheckInput(job, target, path); err != nil {
		return nil, err
	}
	log := b.log.WithFields(logrus.Fields{"job": job.Label(), "target": target.String()})

	log.Info("requesting chain data")
	data, err := b.generator.Generate(ctx, GenerateRequest{
		Mode:          ModeFull,
		InitialHeight: job.Height,
		NumBlocks:     job.BatchSize,
		Fast:          false,
		MMRRoots:      false,
	})
	if err != nil {
		return nil, NewError(ErrGeneration, job, path, err)
	}
	if err := checkChainData(job, data); err != nil {
		return nil, NewError(ErrGeneration, job, path, err)
	}

	bundle := NewArgumentBundle(data, target)
	if err := bundle.Write(path); err != nil {
		return nil, NewError(ErrSerialization, job, path, err)
	}
	log.WithField("path", path).Infof("argument bundle written with %d blocks", len(bundle.Blocks))
	return bundle, nil
}

func checkChainData(job Job, data *ChainData) error {
	if data == nil {
		return errors.New("generator returned no data")
	}
	if len(data.ChainState) == 0 || string(data.ChainState) == "null" {
		return errors.New("generator returned no chain state")
	}
	if uint64(len(data.Blocks)) != job.BatchSize {
		return fmt.Errorf("generator returned %d blocks, expected %d", len(data.Blocks), job.BatchSize)
	}
	return nil
}
