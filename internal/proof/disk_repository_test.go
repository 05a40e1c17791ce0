package proof

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSaveAndFind(t *testing.T) {
	disk := newTestDiskRepository(t)
	input := disk.saveTestRecords(t, 1, StateSucceeded)
	result := disk.Find(input[0].Id)
	require.NotNil(t, result, "record not exist")
	assert.Equal(t, input[0].Label, result.Label)
	assert.Equal(t, StateSucceeded, result.State)
	assert.Nil(t, disk.Find("missing"))
}

func TestDiskRejectsBackwardTransition(t *testing.T) {
	disk := newTestDiskRepository(t)
	record := disk.saveTestRecords(t, 1, StateSubmitted)[0]

	record.State = StateBuilt
	require.Error(t, disk.Save(record))

	record.State = StateFailed
	require.NoError(t, disk.Save(record))
	record.State = StateSucceeded
	require.Error(t, disk.Save(record))

	record.Attempt++
	record.State = StateBuilt
	require.NoError(t, disk.Save(record))
}

func TestDeleteOldRecords(t *testing.T) {
	disk := newTestDiskRepository(t)
	records := disk.saveTestRecords(t, 10, StateSucceeded)
	running := &Record{Id: "running", Attempt: 1, State: StateSubmitted}
	require.NoError(t, disk.Save(running))

	old := time.Now().Add(-2 * time.Hour)
	for _, record := range records[:len(records)/2] {
		require.NoError(t, os.Chtimes(disk.path(record.Id), old, old))
	}
	require.NoError(t, os.Chtimes(disk.path(running.Id), old, old))

	deleted := disk.deleteOldRecords(time.Now().Add(-time.Hour))
	assert.Equal(t, len(records)/2, deleted)

	files, _ := os.ReadDir(disk.baseDir)
	assert.Len(t, files, len(records)-len(records)/2+1, "running and recent records are kept")
	assert.NotNil(t, disk.Find("running"))
}

func TestDeleteOldRecordsKeepsOtherFiles(t *testing.T) {
	disk := newTestDiskRepository(t)
	other := filepath.Join(disk.baseDir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("keep"), 0644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(other, old, old))

	assert.Equal(t, 0, disk.deleteOldRecords(time.Now()))
	assert.FileExists(t, other)
}

func newTestDiskRepository(t *testing.T) *DiskRepository {
	logger, _ := test.NewNullLogger()
	disk, err := NewDiskRepository(t.TempDir(), 0, 0, logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(disk.Close)
	return disk
}

func (r *DiskRepository) saveTestRecords(t *testing.T, count int, state State) (result []*Record) {
	for i := 0; i < count; i++ {
		req := Request{Job: job.New(uint64(i), 1), Target: job.TargetOutput{Txid: strconv.Itoa(i)}}
		record := newRecord(req, time.Now())
		record.Attempt = 1
		record.State = state
		require.NoError(t, r.Save(record))
		result = append(result, record)
	}
	return
}
