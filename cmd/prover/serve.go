package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/kroma-network/utxo-prover/internal/proof"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func serveJobs(ctx *cli.Context) error {
	log, err := newLogger(ctx)
	if err != nil {
		return err
	}
	if ctx.String(GeneratorURL.Name) == "" && ctx.String(GeneratorCommand.Name) == "" {
		return fmt.Errorf("serving requires --%s or --%s", GeneratorURL.Name, GeneratorCommand.Name)
	}
	baseDir := ctx.String(ProofBaseDir.Name)
	service, err := newService(ctx, log, filepath.Join(baseDir, recordsDirName), filepath.Join(baseDir, "work"), ctx.Duration(RecordRetention.Name))
	if err != nil {
		return err
	}
	proverServer := proof.NewServer(service, log)

	srv := http.Server{
		Addr:         net.JoinHostPort(ctx.String(JsonRpcAddr.Name), strconv.Itoa(ctx.Int(JsonRpcPort.Name))),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		Handler:      proverServer,
	}
	healthService, err := listenHealth(net.JoinHostPort(ctx.String(GRPCAddr.Name), strconv.Itoa(ctx.Int(GRPCPort.Name))))
	if err != nil {
		proverServer.Close()
		return err
	}

	serveErr := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("failed to serve json-rpc: %w", err)
		}
	}()
	go func() {
		if err := healthService.Serve(); err != nil {
			serveErr <- fmt.Errorf("failed to serve grpc: %w", err)
		}
	}()
	log.WithFields(logrus.Fields{"jsonrpc": srv.Addr, "grpc": healthService.Addr()}).Info("serving proof jobs")

	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-interruptChannel:
		log.Infof("received %s, shutting down", sig)
	case err = <-serveErr:
		log.WithError(err).Error("server stopped")
	}

	proverServer.Close()
	healthService.Stop()
	if closeErr := srv.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("failed to close tcp")
	}
	return err
}

// healthService answers gRPC health checks for the serve command.
type healthService struct {
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
}

func listenHealth(address string) (*healthService, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for grpc: %w", err)
	}
	h := &healthService{listener: listener, server: grpc.NewServer(), health: health.NewServer()}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h, nil
}

func (h *healthService) Addr() string { return h.listener.Addr().String() }

func (h *healthService) Serve() error { return h.server.Serve(h.listener) }

// Stop reports NOT_SERVING to watchers, then drains open calls.
func (h *healthService) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
