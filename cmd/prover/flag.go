package main

import (
	"time"

	"github.com/urfave/cli"
)

const (
	defaultHeight    = 913139
	defaultBatchSize = 1
	// Spent in block 913140.
	defaultTxid = "92902693c34c80da75da19f97bfb3719013883d8d307e88011a648363dd2f334"
	defaultVout = 1
)

var (
	LogFormat = cli.StringFlag{
		Name:   "log.format",
		Usage:  "Log output format (text|json)",
		Value:  "text",
		EnvVar: "LOG_FORMAT",
	}
	LogVerbosity = cli.IntFlag{
		Name:   "log.verbosity",
		Usage:  "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
		Value:  4,
		EnvVar: "LOG_VERBOSITY",
	}
	OutputPath = cli.StringFlag{
		Name:     "output-path",
		Usage:    "Directory holding args.json, the proof and job records",
		EnvVar:   "OUTPUT_PATH",
		Required: true,
	}
	ExecutablePath = cli.StringFlag{
		Name:   "executable-path",
		Usage:  "Prover executable",
		EnvVar: "PROVER_EXECUTABLE_PATH",
	}
	GenerateArgs = cli.BoolFlag{
		Name:  "generate-args",
		Usage: "Generate the argument bundle before proving (requires --proof-path)",
	}
	ProofPath = cli.StringFlag{
		Name:  "proof-path",
		Usage: "Where the prover writes the proof (default <output-path>/result_proof.json)",
	}
	Height = cli.Uint64Flag{
		Name:  "height",
		Usage: "First block height of the job",
		Value: defaultHeight,
	}
	BatchSize = cli.Uint64Flag{
		Name:  "batch-size",
		Usage: "Number of blocks in the job",
		Value: defaultBatchSize,
	}
	Txid = cli.StringFlag{
		Name:  "txid",
		Usage: "Transaction id of the target output",
		Value: defaultTxid,
	}
	Vout = cli.Uint64Flag{
		Name:  "vout",
		Usage: "Output index of the target output",
		Value: defaultVout,
	}
	ProverTimeout = cli.DurationFlag{
		Name:   "prover.timeout",
		Usage:  "Abort the prover after this long (0 waits indefinitely)",
		EnvVar: "PROVER_TIMEOUT",
	}
	GeneratorURL = cli.StringFlag{
		Name:   "generator.url",
		Usage:  "JSON-RPC endpoint of the chain data generator",
		EnvVar: "GENERATOR_URL",
	}
	GeneratorCommand = cli.StringFlag{
		Name:   "generator.command",
		Usage:  "Local chain data generator command, e.g. \"python3 generate_data.py\"",
		EnvVar: "GENERATOR_COMMAND",
	}
	ArchiveBucket = cli.StringFlag{
		Name:   "archive.s3-bucket",
		Usage:  "S3 bucket receiving job artifacts once a job finishes",
		EnvVar: "ARCHIVE_S3_BUCKET",
	}
	ArchivePrefix = cli.StringFlag{
		Name:   "archive.s3-prefix",
		Usage:  "Key prefix for archived job artifacts",
		Value:  "jobs",
		EnvVar: "ARCHIVE_S3_PREFIX",
	}
	AwsRegion = cli.StringFlag{
		Name:   "aws.region",
		Value:  "ap-northeast-2",
		EnvVar: "AWS_REGION",
	}

	JsonRpcAddr = cli.StringFlag{
		Name:   "jsonrpc.addr",
		Usage:  "JSON-RPC server listening address",
		Value:  "localhost",
		EnvVar: "JSONRPC_ADDR",
	}
	JsonRpcPort = cli.IntFlag{
		Name:   "jsonrpc.port",
		Usage:  "JSON-RPC server listening port",
		Value:  6000,
		EnvVar: "JSONRPC_PORT",
	}
	GRPCAddr = cli.StringFlag{
		Name:   "grpc.addr",
		Usage:  "GRPC health server listening address",
		Value:  "localhost",
		EnvVar: "GRPC_ADDR",
	}
	GRPCPort = cli.IntFlag{
		Name:   "grpc.port",
		Usage:  "GRPC health server listening port",
		Value:  6001,
		EnvVar: "GRPC_PORT",
	}
	ProofBaseDir = cli.StringFlag{
		Name:   "proof.base-dir",
		Usage:  "A directory to store the argument bundles, proofs and records of served jobs",
		Value:  "./proof",
		EnvVar: "PROOF_BASE_DIR",
	}
	RecordRetention = cli.DurationFlag{
		Name:   "record.retention",
		Usage:  "Delete finished job records older than this (0 keeps them)",
		Value:  7 * 24 * time.Hour,
		EnvVar: "RECORD_RETENTION",
	}
)

func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		LogFormat,
		LogVerbosity,
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		ExecutablePath,
		ProverTimeout,
		GeneratorURL,
		GeneratorCommand,
		ArchiveBucket,
		ArchivePrefix,
		AwsRegion,
	}
}

func ProveFlags() []cli.Flag {
	return append([]cli.Flag{
		OutputPath,
		GenerateArgs,
		ProofPath,
		Height,
		BatchSize,
		Txid,
		Vout,
	}, commonFlags()...)
}

func ServeFlags() []cli.Flag {
	return append([]cli.Flag{
		JsonRpcAddr,
		JsonRpcPort,
		GRPCAddr,
		GRPCPort,
		ProofBaseDir,
		RecordRetention,
	}, commonFlags()...)
}
