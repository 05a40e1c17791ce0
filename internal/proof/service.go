package proof

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/kroma-network/utxo-prover/internal/prover"
	"github.com/sirupsen/logrus"
)

const (
	argumentsFileName = "args.json"
	proofFileName     = "result_proof.json"
	archiveTimeout    = 5 * time.Minute
)

// Archiver copies the files of a finished job somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, id string, paths ...string) error
}

// Service runs jobs through BUILT, SUBMITTED and a terminal state, keeping
// the job record current on disk. Only one prover runs at a time.
type Service struct {
	disk       *DiskRepository
	builder    *job.Builder
	invoker    *prover.Invoker
	archiver   Archiver
	executable string
	workDir    string
	log        *logrus.Entry

	proving         sync.Mutex
	mu              sync.Mutex
	inProgressProof map[string]*sync.WaitGroup
	closeContext    context.Context
	cancel          context.CancelFunc
}

// NewService wires the pipeline. builder may be nil when no generator is
// configured, in which case only existing argument bundles can be proven.
func NewService(disk *DiskRepository, builder *job.Builder, invoker *prover.Invoker, executable, workDir string, log *logrus.Entry) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		disk:            disk,
		builder:         builder,
		invoker:         invoker,
		executable:      executable,
		workDir:         workDir,
		log:             log,
		inProgressProof: make(map[string]*sync.WaitGroup),
		closeContext:    ctx,
		cancel:          cancel,
	}
}

func (s *Service) SetArchiver(archiver Archiver) { s.archiver = archiver }

// NewRequest lays out the files of a job under its own directory in the work
// dir so concurrent jobs never share paths.
func (s *Service) NewRequest(j job.Job, target job.TargetOutput) Request {
	req := Request{Job: j, Target: target, Generate: true}
	dir := filepath.Join(s.workDir, req.Id())
	req.ArgumentsPath = filepath.Join(dir, argumentsFileName)
	req.ProofPath = filepath.Join(dir, proofFileName)
	return req
}

// Prove runs one attempt of req and blocks until it is done. The returned
// error is the job error itself, so callers can match its kind.
func (s *Service) Prove(ctx context.Context, req Request) (*Record, error) {
	s.proving.Lock()
	defer s.proving.Unlock()

	record := s.nextAttempt(req)
	log := s.log.WithFields(logrus.Fields{
		"id":         record.Id,
		"height":     req.Job.Height,
		"batch_size": req.Job.BatchSize,
		"attempt":    record.Attempt,
	})

	if err := ctx.Err(); err != nil {
		return s.fail(log, record, job.NewError(job.ErrCancelled, req.Job, req.ArgumentsPath, err))
	}
	if req.Generate {
		if s.builder == nil {
			err := job.NewError(job.ErrGeneration, req.Job, req.ArgumentsPath, errors.New("no generator configured"))
			return s.fail(log, record, err)
		}
		if _, err := s.builder.Build(ctx, req.Job, req.Target, req.ArgumentsPath); err != nil {
			return s.fail(log, record, err)
		}
	} else if _, err := os.Stat(req.ArgumentsPath); err != nil {
		return s.fail(log, record, job.NewError(job.ErrArgumentsNotFound, req.Job, req.ArgumentsPath, err))
	}
	s.transition(log, record, StateBuilt)

	result, err := s.invoker.Run(ctx, prover.Invocation{
		Job:           req.Job,
		Executable:    s.executable,
		ArgumentsPath: req.ArgumentsPath,
		ProofPath:     req.ProofPath,
		OnSubmitted:   func() { s.transition(log, record, StateSubmitted) },
	})
	if err != nil {
		return s.fail(log, record, err)
	}
	record.Steps = result.Steps
	record.ProofPath = result.ProofPath
	s.transition(log, record, StateSucceeded)
	s.archive(log, record)
	return record, nil
}

// nextAttempt returns a fresh record for req. A pending record saved by
// Submit already holds the attempt number, so it is reused.
func (s *Service) nextAttempt(req Request) *Record {
	record := newRecord(req, time.Now())
	record.Attempt = 1
	if previous := s.disk.Find(record.Id); previous != nil {
		record.CreatedAt = previous.CreatedAt
		record.Attempt = previous.Attempt
		if previous.State != "" {
			record.Attempt++
		}
	}
	return record
}

func (s *Service) fail(log *logrus.Entry, record *Record, err error) (*Record, error) {
	record.Error = err.Error()
	record.ErrorKind = job.KindName(err)
	var jobErr *job.Error
	if errors.As(err, &jobErr) && len(jobErr.Steps) > 0 {
		record.Steps = jobErr.Steps
	}
	log.WithError(err).WithField("kind", record.ErrorKind).Error("job failed")
	s.transition(log, record, StateFailed)
	s.archive(log, record)
	return record, err
}

func (s *Service) transition(log *logrus.Entry, record *Record, state State) {
	record.State = state
	record.UpdatedAt = time.Now()
	if err := s.disk.Save(record); err != nil {
		log.WithError(err).Errorf("failed to save record in state %s", state)
		return
	}
	log.WithField("state", state).Debug("job record saved")
}

func (s *Service) archive(log *logrus.Entry, record *Record) {
	if s.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	var paths []string
	for _, path := range []string{s.disk.path(record.Id), record.ArgumentsPath, record.ProofPath} {
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	if err := s.archiver.Archive(ctx, record.Id, paths...); err != nil {
		log.WithError(err).Error("failed to archive job artifacts")
	}
}

// Submit starts req in the background unless it already succeeded or is in
// progress, and returns the current record. A failed job is run again.
func (s *Service) Submit(req Request) (*Record, error) {
	id := req.Id()
	if record := s.disk.Find(id); record != nil && record.State == StateSucceeded {
		return record, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeContext.Err() != nil {
		return nil, errors.New("service is closed")
	}
	if _, ok := s.inProgressProof[id]; ok {
		return s.current(req), nil
	}
	if err := os.MkdirAll(filepath.Dir(req.ArgumentsPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	// The job is visible to Status from here on, before generation starts.
	pending := s.nextAttempt(req)
	if err := s.disk.Save(pending); err != nil {
		return nil, fmt.Errorf("failed to save job record: %w", err)
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.inProgressProof[id] = wg
	go func() {
		defer wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inProgressProof, id)
			s.mu.Unlock()
		}()
		s.log.WithField("id", id).Infof("prove start %s", req.Job.Label())
		_, err := s.Prove(s.closeContext, req)
		s.log.WithField("id", id).WithError(err).Infof("prove complete %s", req.Job.Label())
	}()
	return pending, nil
}

// current returns the stored record of req if it has one for the running
// attempt, otherwise a record without a state.
func (s *Service) current(req Request) *Record {
	if record := s.disk.Find(req.Id()); record != nil && !record.State.Terminal() {
		return record
	}
	return newRecord(req, time.Now())
}

// Wait blocks until the job with id is no longer in progress and returns its
// record.
func (s *Service) Wait(id string) (*Record, error) {
	s.mu.Lock()
	wg := s.inProgressProof[id]
	s.mu.Unlock()
	if wg != nil {
		wg.Wait()
	}
	return s.Status(id)
}

func (s *Service) Status(id string) (*Record, error) {
	if record := s.disk.Find(id); record != nil {
		return record, nil
	}
	return nil, fmt.Errorf("job %s not found", id)
}

func (s *Service) InProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inProgressProof)
}

// Close cancels running jobs, waits for them to record their outcome and
// stops the record pruning.
func (s *Service) Close() {
	s.mu.Lock()
	s.cancel()
	inProgress := make([]*sync.WaitGroup, 0, len(s.inProgressProof))
	for _, wg := range s.inProgressProof {
		inProgress = append(inProgress, wg)
	}
	s.mu.Unlock()
	for _, wg := range inProgress {
		wg.Wait()
	}
	s.disk.Close()
}
