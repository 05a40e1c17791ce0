package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kroma-network/utxo-prover/internal/archive"
	"github.com/kroma-network/utxo-prover/internal/generator"
	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/kroma-network/utxo-prover/internal/logging"
	"github.com/kroma-network/utxo-prover/internal/proof"
	"github.com/kroma-network/utxo-prover/internal/prover"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	argumentsFileName = "args.json"
	proofFileName     = "result_proof.json"
	recordsDirName    = "jobs"

	recordPruneInterval = 10 * time.Minute
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "utxo-prover: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "utxo-prover"
	app.Usage = "build UTXO proof jobs and run the prover on them"
	app.Version = "0.0.1"
	app.Flags = GlobalFlags()
	app.Commands = []cli.Command{
		{
			Name:   "prove",
			Usage:  "run one proof job",
			Flags:  ProveFlags(),
			Action: proveJob,
		},
		{
			Name:   "serve",
			Usage:  "accept proof jobs over JSON-RPC",
			Flags:  ServeFlags(),
			Action: serveJobs,
		},
	}
	return app
}

func newLogger(ctx *cli.Context) (*logrus.Entry, error) {
	logger, err := logging.New(ctx.App.ErrWriter, ctx.GlobalString(LogFormat.Name), ctx.GlobalInt(LogVerbosity.Name))
	if err != nil {
		return nil, err
	}
	return logrus.NewEntry(logger), nil
}

func proveJob(ctx *cli.Context) error {
	log, err := newLogger(ctx)
	if err != nil {
		return err
	}
	j := job.New(ctx.Uint64(Height.Name), ctx.Uint64(BatchSize.Name))
	vout, err := job.ParseVout(ctx.Uint64(Vout.Name))
	if err != nil {
		return job.NewError(job.ErrInvalidJob, j, "", err)
	}
	target := job.TargetOutput{Txid: ctx.String(Txid.Name), Vout: vout}
	if err := job.CheckInput(j, target, ""); err != nil {
		return err
	}

	outputPath := ctx.String(OutputPath.Name)
	if info, err := os.Stat(outputPath); err != nil || !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", outputPath)
	}
	proofPath, err := resolveProofPath(ctx.Bool(GenerateArgs.Name), ctx.String(ProofPath.Name), outputPath)
	if err != nil {
		return err
	}

	if ctx.Bool(GenerateArgs.Name) && ctx.String(GeneratorURL.Name) == "" && ctx.String(GeneratorCommand.Name) == "" {
		return fmt.Errorf("--%s requires --%s or --%s", GenerateArgs.Name, GeneratorURL.Name, GeneratorCommand.Name)
	}

	service, err := newService(ctx, log, filepath.Join(outputPath, recordsDirName), outputPath, 0)
	if err != nil {
		return err
	}
	defer service.Close()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	record, err := service.Prove(signalCtx, proof.Request{
		Job:           j,
		Target:        target,
		ArgumentsPath: filepath.Join(outputPath, argumentsFileName),
		ProofPath:     proofPath,
		Generate:      ctx.Bool(GenerateArgs.Name),
	})
	if record != nil && len(record.Steps) > 0 {
		fmt.Fprintln(ctx.App.Writer, job.Summary(record.Steps))
	}
	return err
}

// resolveProofPath picks where the prover writes its proof. Regenerating the
// bundle requires the proof path to be given explicitly.
func resolveProofPath(generate bool, proofPath, outputPath string) (string, error) {
	if proofPath == "" {
		if generate {
			return "", fmt.Errorf("--%s requires --%s", GenerateArgs.Name, ProofPath.Name)
		}
		return filepath.Join(outputPath, proofFileName), nil
	}
	if info, err := os.Stat(filepath.Dir(proofPath)); err != nil || !info.IsDir() {
		return "", fmt.Errorf("directory of proof path %s does not exist", proofPath)
	}
	if info, err := os.Stat(proofPath); err == nil && info.IsDir() {
		return "", fmt.Errorf("proof path %s is a directory", proofPath)
	}
	return proofPath, nil
}

func newService(ctx *cli.Context, log *logrus.Entry, recordsDir, workDir string, retention time.Duration) (*proof.Service, error) {
	builder, err := newBuilder(ctx, log)
	if err != nil {
		return nil, err
	}
	var archiver proof.Archiver
	if bucket := ctx.String(ArchiveBucket.Name); bucket != "" {
		if archiver, err = archive.NewS3(ctx.String(AwsRegion.Name), bucket, ctx.String(ArchivePrefix.Name)); err != nil {
			return nil, err
		}
	}
	disk, err := proof.NewDiskRepository(recordsDir, retention, recordPruneInterval, log)
	if err != nil {
		return nil, err
	}
	service := proof.NewService(
		disk,
		builder,
		prover.NewInvoker(prover.NewExecLauncher(log), ctx.Duration(ProverTimeout.Name), log),
		ctx.String(ExecutablePath.Name),
		workDir,
		log,
	)
	if archiver != nil {
		service.SetArchiver(archiver)
	}
	return service, nil
}

// newBuilder returns nil when no generator is configured.
func newBuilder(ctx *cli.Context, log *logrus.Entry) (*job.Builder, error) {
	url, command := ctx.String(GeneratorURL.Name), ctx.String(GeneratorCommand.Name)
	var generate job.Generator
	switch {
	case url != "" && command != "":
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", GeneratorURL.Name, GeneratorCommand.Name)
	case url != "":
		generate = generator.NewClient(url)
	case command != "":
		c, err := generator.NewCommand(command, log)
		if err != nil {
			return nil, err
		}
		generate = c
	default:
		return nil, nil
	}
	return job.NewBuilder(generate, log), nil
}
