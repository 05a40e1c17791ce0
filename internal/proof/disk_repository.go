package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/sirupsen/logrus"
)

const recordSuffix = ".json"

// DiskRepository keeps one JSON record per job id. Argument bundles and
// proofs live elsewhere and are never touched here.
type DiskRepository struct {
	baseDir      string
	deleteBefore time.Duration
	log          *logrus.Entry
	closeContext context.Context
	Close        context.CancelFunc
}

// NewDiskRepository creates baseDir if needed. With a positive retention,
// terminal records older than it are pruned every interval.
func NewDiskRepository(baseDir string, retention, interval time.Duration, log *logrus.Entry) (*DiskRepository, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll failed: %w", err)
	}
	ctx, cancelFunc := context.WithCancel(context.Background())
	disk := &DiskRepository{
		baseDir:      baseDir,
		deleteBefore: retention,
		log:          log,
		closeContext: ctx,
		Close:        cancelFunc,
	}
	if retention > 0 && interval > 0 {
		go disk.scheduleDeleteOldRecords(interval)
	}
	return disk, nil
}

func (r *DiskRepository) path(id string) string {
	return filepath.Join(r.baseDir, id+recordSuffix)
}

func (r *DiskRepository) Find(id string) (record *Record) {
	file, err := os.ReadFile(r.path(id))
	if err == nil {
		if err = json.Unmarshal(file, &record); err != nil {
			r.log.Warnf("json.Unmarshal of record %s failed. %v", id, err)
			return nil
		}
	}
	return
}

// Save stores record. Within one attempt a record never moves back to an
// earlier state.
func (r *DiskRepository) Save(record *Record) error {
	if previous := r.Find(record.Id); previous != nil && previous.Attempt == record.Attempt &&
		previous.State != record.State && !previous.State.CanMoveTo(record.State) {
		return fmt.Errorf("record %s attempt %d cannot move from %s to %s", record.Id, record.Attempt, previous.State, record.State)
	}
	jsonResult, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return job.WriteFile(r.path(record.Id), jsonResult, 0644)
}

func (r *DiskRepository) scheduleDeleteOldRecords(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deletedCount := r.deleteOldRecords(time.Now().Add(-r.deleteBefore))
			r.log.Debugf("deleted old record count %d", deletedCount)
		case <-r.closeContext.Done():
			return
		}
	}
}

// deleteOldRecords deletes terminal records last written before time.
func (r *DiskRepository) deleteOldRecords(time time.Time) (deletedCount int) {
	files, _ := os.ReadDir(r.baseDir)
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), recordSuffix) {
			continue
		}
		info, err := file.Info()
		if err != nil || !info.ModTime().Before(time) {
			continue
		}
		record := r.Find(strings.TrimSuffix(file.Name(), recordSuffix))
		if record != nil && !record.State.Terminal() {
			continue
		}
		if err := os.Remove(filepath.Join(r.baseDir, file.Name())); err != nil {
			r.log.Warn(fmt.Errorf("failed to delete old record %s: %w", file.Name(), err))
		} else {
			deletedCount++
		}
	}
	return
}
