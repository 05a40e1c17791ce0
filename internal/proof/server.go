package proof

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/kroma-network/utxo-prover/internal/jsonrpc"
	"github.com/sirupsen/logrus"
)

// Server exposes the service over JSON-RPC:
//
//	prove  [height, batch_size, txid, vout] -> Record
//	status [id]                             -> Record
type Server struct {
	service *Service
	log     *logrus.Entry
}

func NewServer(service *Service, log *logrus.Entry) *Server {
	return &Server{service: service, log: log}
}

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Id     any               `json:"id"`
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, httpRequest *http.Request) {
	switch httpRequest.URL.Path {
	case "/":
		s.serveJsonRpc(writer, httpRequest)
	case "/health":
		response := map[string]interface{}{
			"status":               "ok",
			"generatingProofCount": s.service.InProgress(),
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(response); err != nil {
			http.Error(writer, "Failed to encode JSON response", http.StatusInternalServerError)
		}
	default:
		http.NotFound(writer, httpRequest)
	}
}

func (s *Server) serveJsonRpc(writer http.ResponseWriter, httpRequest *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(httpRequest.Body).Decode(&request); err != nil {
		http.Error(writer, "Failed to decode JSON request", http.StatusBadRequest)
		return
	}
	if request.Method == "" {
		http.Error(writer, "Method not found in JSON request", http.StatusBadRequest)
		return
	}

	response := jsonrpc.Response[any]{Jsonrpc: jsonrpc.Version, Id: request.Id}
	if result, err := s.callMethod(request.Method, request.Params); err != nil {
		rpcError := jsonrpc.NewErrorFromErrorOrNil(err)
		if rpcError == nil {
			rpcError = jsonrpc.NewErrorFromString(err.Error())
		}
		response.Error = rpcError
	} else {
		response.Result = &result
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		http.Error(writer, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}

func (s *Server) callMethod(method string, params []json.RawMessage) (any, error) {
	switch method {
	case "prove":
		s.log.Debug("prove requested")
		if len(params) != 4 {
			return nil, errors.New("prove expects [height, batch_size, txid, vout]")
		}
		var (
			height, batchSize uint64
			target            job.TargetOutput
		)
		if err := decodeParams(params, &height, &batchSize, &target.Txid, &target.Vout); err != nil {
			return nil, err
		}
		j := job.New(height, batchSize)
		if err := job.CheckInput(j, target, ""); err != nil {
			return nil, err
		}
		return s.service.Submit(s.service.NewRequest(j, target))
	case "status":
		s.log.Debug("status requested")
		var id string
		if len(params) != 1 {
			return nil, errors.New("status expects [id]")
		}
		if err := decodeParams(params, &id); err != nil {
			return nil, err
		}
		return s.service.Status(id)
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

func decodeParams(params []json.RawMessage, targets ...any) error {
	for i, target := range targets {
		if err := json.Unmarshal(params[i], target); err != nil {
			return fmt.Errorf("failed to read parameter %d: %w", i, err)
		}
	}
	return nil
}

func (s *Server) Close() {
	s.service.Close()
}
