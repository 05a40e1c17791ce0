package generator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/kroma-network/utxo-prover/internal/jsonrpc"
)

const generateMethod = "generate_data"

// Client asks a JSON-RPC generator service for chain data.
type Client struct {
	address string
	http    *http.Client
}

func NewClient(address string) *Client {
	return &Client{address: address, http: http.DefaultClient}
}

func (c *Client) Generate(ctx context.Context, req job.GenerateRequest) (*job.ChainData, error) {
	data, err := jsonrpc.Call[job.ChainData](ctx, c.http, c.address, generateMethod, req)
	if err != nil {
		return nil, fmt.Errorf("%s at %s: %w", generateMethod, c.address, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%s at %s: empty result", generateMethod, c.address)
	}
	return data, nil
}
