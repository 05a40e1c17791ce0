package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const Version = "2.0"

type Request struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Id      any    `json:"id"`
}

type Response[T any] struct {
	Jsonrpc string `json:"jsonrpc"`
	Result  *T     `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Id      any    `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewErrorFromString(err string) *Error {
	return &Error{Code: -32000, Message: err}
}

func NewErrorFromErrorOrNil(err error) (rpcError *Error) {
	errors.As(err, &rpcError)
	return
}

func (j *Error) Error() string { return fmt.Sprintf("[%d] %s", j.Code, j.Message) }

// Call posts a single request to address and decodes the result into T.
func Call[T any](ctx context.Context, client *http.Client, address string, method string, params any) (*T, error) {
	jsonBytes, err := json.Marshal(Request{Version, method, params, "0"})
	if err != nil {
		return nil, fmt.Errorf("failed to json.Marshal %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()
	jsonBytes, err = io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}
	var response Response[T]
	if err = json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to json.Unmarshal response with status %s: %w", httpResponse.Status, err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}
