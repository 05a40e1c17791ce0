package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChainData is what the generator returns for a job. Both fields are
// generator-defined documents that are passed through untouched.
type ChainData struct {
	ChainState json.RawMessage   `json:"chain_state"`
	Blocks     []json.RawMessage `json:"blocks"`
}

// ArgumentBundle is the file handed to the prover.
type ArgumentBundle struct {
	ChainState json.RawMessage   `json:"chain_state"`
	Blocks     []json.RawMessage `json:"blocks"`
	TargetUTXO TargetOutput      `json:"target_utxo"`
}

func NewArgumentBundle(data *ChainData, target TargetOutput) *ArgumentBundle {
	return &ArgumentBundle{
		ChainState: data.ChainState,
		Blocks:     data.Blocks,
		TargetUTXO: target,
	}
}

// Marshal renders the bundle as indented JSON. Raw fields are compacted
// before indenting, so marshalling a bundle read back from disk yields the
// same bytes.
func (b *ArgumentBundle) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Write replaces path with the bundle. The file is either fully written or
// left as it was.
func (b *ArgumentBundle) Write(path string) error {
	out, err := b.Marshal()
	if err != nil {
		return err
	}
	return WriteFile(path, out, 0644)
}

func ReadArgumentBundle(path string) (*ArgumentBundle, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(file))
	decoder.DisallowUnknownFields()
	var bundle ArgumentBundle
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode argument bundle %s: %w", path, err)
	}
	return &bundle, nil
}

// WriteFile writes data to a temporary file next to path and renames it into
// place once synced.
func WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
