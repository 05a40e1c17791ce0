package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/sirupsen/logrus"
)

// Command runs a local generator program and reads chain data from its
// stdout.
type Command struct {
	argv []string
	log  *logrus.Entry
}

// NewCommand splits command on whitespace, e.g. "python3 generate_data.py".
func NewCommand(command string, log *logrus.Entry) (*Command, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("no generator command provided")
	}
	return &Command{argv: argv, log: log}, nil
}

func (c *Command) Args(req job.GenerateRequest) []string {
	args := append([]string{}, c.argv[1:]...)
	args = append(args,
		"--mode", string(req.Mode),
		"--initial-height", strconv.FormatUint(req.InitialHeight, 10),
		"--num-blocks", strconv.FormatUint(req.NumBlocks, 10),
	)
	if req.Fast {
		args = append(args, "--fast")
	}
	if req.MMRRoots {
		args = append(args, "--mmr-roots")
	}
	return args
}

func (c *Command) Generate(ctx context.Context, req job.GenerateRequest) (*job.ChainData, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.Args(req)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.WithField("command", cmd.String()).Debug("running generator")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("generator %s failed: %w: %s", c.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	var data job.ChainData
	if err := json.Unmarshal(stdout.Bytes(), &data); err != nil {
		return nil, fmt.Errorf("generator %s wrote invalid output: %w", c.argv[0], err)
	}
	return &data, nil
}
