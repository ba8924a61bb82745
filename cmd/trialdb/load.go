package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warp/trialdb/config"
	"github.com/warp/trialdb/ingest"
	"github.com/warp/trialdb/logging"
	"github.com/warp/trialdb/trial"
)

type rootOptions struct {
	configPath string
	input      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "trialdb",
		Short:         "Load clinical-trial cell counts into a relational database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default "+config.DefaultPath+" if present)")
	cmd.Flags().StringVar(&opts.input, "input", "", "input CSV path or s3://bucket/key")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitConfig, err)
	})

	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// setup resolves configuration and builds the logger shared by all commands.
func setup(opts *rootOptions) (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if opts.input != "" {
		cfg.Input = opts.input
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return cfg, nil, withCode(exitConfig, fmt.Errorf("init logger: %w", err))
	}
	return cfg, log, nil
}

// runLoad is the default command: parse, schema, normalize, load, verify.
func runLoad(ctx context.Context, out io.Writer, opts *rootOptions) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With("driver", cfg.Driver, "input", cfg.Input)

	// Input problems abort before the store is touched.
	rows, err := ingest.NewSource(s3Options(cfg)).Read(ctx, cfg.Input)
	if err != nil {
		log.Error("read input failed", "error", err)
		return err
	}
	fmt.Fprintf(out, "Parsed %d rows from %s\n", len(rows), cfg.Input)

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("open store failed", "error", err)
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("ensure schema failed", "error", err)
		return err
	}
	fmt.Fprintf(out, "Schema ready (%s)\n", cfg.Driver)

	sets := trial.Normalize(rows)
	report, err := trial.NewLoader(store, trial.WithLogger(log)).Load(ctx, rows, sets)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Data loaded successfully!")

	// The load is committed; a verification failure is reported only.
	counts, err := trial.NewVerifier(store).Verify(ctx)
	if err != nil {
		log.Error("verify failed", "run_id", report.RunID.String(), "error", err)
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Fprintf(out, "Subjects loaded: %d\n", counts.Subjects)
	fmt.Fprintf(out, "Samples loaded: %d\n", counts.Samples)
	return nil
}

func s3Options(cfg config.Config) ingest.S3Options {
	return ingest.S3Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	}
}
