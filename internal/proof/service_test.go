package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/kroma-network/utxo-prover/internal/prover"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTxid = "92902693c34c80da75da19f97bfb3719013883d8d307e88011a648363dd2f334"
	testVout = 1
)

// stubProver reports two steps and writes an empty proof.
const stubProver = `
echo '{"name": "load_arguments", "success": true, "duration_ms": 4}'
echo '{"name": "prove_inclusion", "success": true, "duration_ms": 25}'
: > "$6"
`

type testGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (g *testGenerator) Generate(ctx context.Context, req job.GenerateRequest) (*job.ChainData, error) {
	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	data := &job.ChainData{ChainState: json.RawMessage(`{"roots": []}`)}
	for i := uint64(0); i < req.NumBlocks; i++ {
		data.Blocks = append(data.Blocks, json.RawMessage(fmt.Sprintf(`{"height": %d}`, req.InitialHeight+i)))
	}
	return data, nil
}

type testArchiver struct {
	mu       sync.Mutex
	archived map[string][]string
}

func (a *testArchiver) Archive(_ context.Context, id string, paths ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.archived == nil {
		a.archived = make(map[string][]string)
	}
	a.archived[id] = paths
	return nil
}

type testEnv struct {
	dir       string
	service   *Service
	generator *testGenerator
	disk      *DiskRepository
	hook      *test.Hook
}

func newTestEnv(t *testing.T, script string, timeout time.Duration) *testEnv {
	t.Helper()
	dir := t.TempDir()
	executable := filepath.Join(dir, "prover")
	require.NoError(t, os.WriteFile(executable, []byte("#!/bin/sh\n"+script), 0755))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	log := logrus.NewEntry(logger)
	disk, err := NewDiskRepository(filepath.Join(dir, "records"), 0, 0, log)
	require.NoError(t, err)
	generator := &testGenerator{}
	service := NewService(
		disk,
		job.NewBuilder(generator, log),
		prover.NewInvoker(prover.NewExecLauncher(log), timeout, log),
		executable,
		filepath.Join(dir, "jobs"),
		log,
	)
	t.Cleanup(service.Close)
	return &testEnv{dir: dir, service: service, generator: generator, disk: disk, hook: hook}
}

func (e *testEnv) request() Request {
	return Request{
		Job:           job.New(913139, 1),
		Target:        job.TargetOutput{Txid: testTxid, Vout: testVout},
		ArgumentsPath: filepath.Join(e.dir, "args.json"),
		ProofPath:     filepath.Join(e.dir, "result_proof.json"),
		Generate:      true,
	}
}

func TestProveEndToEnd(t *testing.T) {
	env := newTestEnv(t, stubProver, time.Minute)
	archiver := &testArchiver{}
	env.service.SetArchiver(archiver)
	req := env.request()

	record, err := env.service.Prove(context.Background(), req)
	require.NoError(t, err)

	bundle, err := job.ReadArgumentBundle(req.ArgumentsPath)
	require.NoError(t, err)
	assert.Len(t, bundle.Blocks, 1)
	assert.Equal(t, job.TargetOutput{Txid: testTxid, Vout: testVout}, bundle.TargetUTXO)

	assert.Equal(t, StateSucceeded, record.State)
	assert.Equal(t, 1, record.Attempt)
	require.Len(t, record.Steps, 2)
	assert.Equal(t, "prove_inclusion", record.Steps[1].Name)
	assert.FileExists(t, record.ProofPath)
	assert.Equal(t, req.ProofPath, record.ProofPath)

	stored := env.disk.Find(req.Id())
	require.NotNil(t, stored)
	assert.Equal(t, StateSucceeded, stored.State)
	assert.Equal(t, []string{env.disk.path(req.Id()), req.ArgumentsPath, req.ProofPath}, archiver.archived[req.Id()])
}

func TestProveUsesExistingBundle(t *testing.T) {
	env := newTestEnv(t, stubProver, 0)
	req := env.request()
	_, err := env.service.Prove(context.Background(), req)
	require.NoError(t, err)

	req.Generate = false
	record, err := env.service.Prove(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, env.generator.calls)
	assert.Equal(t, 2, record.Attempt)
	assert.Equal(t, StateSucceeded, record.State)
}

func TestProveMissingBundleNeverBuilt(t *testing.T) {
	env := newTestEnv(t, stubProver, 0)
	req := env.request()
	req.Generate = false

	record, err := env.service.Prove(context.Background(), req)
	require.ErrorIs(t, err, job.ErrArgumentsNotFound)
	assert.Equal(t, StateFailed, record.State)
	assert.Equal(t, "ArgumentsNotFound", record.ErrorKind)
	assert.Equal(t, 0, env.generator.calls)
	for _, entry := range env.hook.AllEntries() {
		assert.NotEqual(t, StateBuilt, entry.Data["state"], "record must not reach BUILT without a bundle")
	}
}

func TestProveGenerationFailure(t *testing.T) {
	env := newTestEnv(t, stubProver, 0)
	env.generator.err = errors.New("height exceeds chain tip")
	req := env.request()

	record, err := env.service.Prove(context.Background(), req)
	require.ErrorIs(t, err, job.ErrGeneration)
	assert.Equal(t, StateFailed, record.State)
	assert.Equal(t, "GenerationError", record.ErrorKind)
	assert.NoFileExists(t, req.ArgumentsPath)
	assert.NoFileExists(t, req.ProofPath)
}

func TestProveWithoutGenerator(t *testing.T) {
	env := newTestEnv(t, stubProver, 0)
	env.service.builder = nil

	_, err := env.service.Prove(context.Background(), env.request())
	require.ErrorIs(t, err, job.ErrGeneration)
}

func TestProveMissingOutput(t *testing.T) {
	env := newTestEnv(t, `echo '{"name": "prove", "success": true}'`, 0)

	record, err := env.service.Prove(context.Background(), env.request())
	require.ErrorIs(t, err, job.ErrMissingOutput)
	assert.Equal(t, StateFailed, record.State)
	assert.Equal(t, "MissingOutput", record.ErrorKind)
	require.Len(t, record.Steps, 1)
}

func TestProveExecutableNotFound(t *testing.T) {
	env := newTestEnv(t, stubProver, 0)
	env.service.executable = filepath.Join(env.dir, "missing-prover")

	record, err := env.service.Prove(context.Background(), env.request())
	require.ErrorIs(t, err, job.ErrExecutableNotFound)
	assert.Equal(t, "ExecutableNotFound", record.ErrorKind)
}

func TestProveTimedOut(t *testing.T) {
	env := newTestEnv(t, "exec sleep 30\n", 100*time.Millisecond)

	record, err := env.service.Prove(context.Background(), env.request())
	require.ErrorIs(t, err, job.ErrTimedOut)
	assert.Equal(t, StateFailed, record.State)
	assert.Equal(t, "TimedOut", env.disk.Find(record.Id).ErrorKind)
}

func TestSubmitRunsInBackground(t *testing.T) {
	env := newTestEnv(t, stubProver, time.Minute)
	req := env.service.NewRequest(job.New(913139, 1), job.TargetOutput{Txid: testTxid, Vout: testVout})
	assert.Equal(t, filepath.Join(env.dir, "jobs", req.Id(), "args.json"), req.ArgumentsPath)

	submitted, err := env.service.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, req.Id(), submitted.Id)

	record, err := env.service.Wait(req.Id())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, record.State)
	assert.Equal(t, 0, env.service.InProgress())

	again, err := env.service.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, again.State)
	assert.Equal(t, 1, env.generator.calls, "a succeeded job is not proven again")
}

func TestSubmitRecordsPendingJob(t *testing.T) {
	env := newTestEnv(t, stubProver, time.Minute)
	env.generator.delay = 300 * time.Millisecond
	req := env.service.NewRequest(job.New(913139, 1), job.TargetOutput{Txid: testTxid, Vout: testVout})

	submitted, err := env.service.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, State(""), submitted.State)
	assert.Equal(t, 1, submitted.Attempt)

	pending, err := env.service.Status(req.Id())
	require.NoError(t, err)
	assert.Equal(t, req.Id(), pending.Id)
	assert.False(t, pending.State.Terminal())

	record, err := env.service.Wait(req.Id())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, record.State)
	assert.Equal(t, 1, record.Attempt)
}

func TestSubmitDeduplicatesInProgress(t *testing.T) {
	env := newTestEnv(t, "sleep 1\n"+stubProver, time.Minute)
	req := env.service.NewRequest(job.New(100, 2), job.TargetOutput{Txid: testTxid})

	_, err := env.service.Submit(req)
	require.NoError(t, err)
	_, err = env.service.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, 1, env.service.InProgress())

	record, err := env.service.Wait(req.Id())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, record.State)
	assert.Equal(t, 1, record.Attempt)
}

func TestCloseCancelsRunningJob(t *testing.T) {
	env := newTestEnv(t, "exec sleep 30\n", 0)
	req := env.service.NewRequest(job.New(1, 1), job.TargetOutput{Txid: testTxid})
	_, err := env.service.Submit(req)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		record := env.disk.Find(req.Id())
		return record != nil && record.State == StateSubmitted
	}, 5*time.Second, 10*time.Millisecond)

	env.service.Close()
	record := env.disk.Find(req.Id())
	require.NotNil(t, record)
	assert.Equal(t, StateFailed, record.State)
	assert.Equal(t, "Cancelled", record.ErrorKind)

	_, err = env.service.Submit(req)
	require.Error(t, err)
}
