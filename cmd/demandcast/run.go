package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aouyang1/go-demandcast"
	"github.com/aouyang1/go-demandcast/config"
	"github.com/aouyang1/go-demandcast/featurestore"
	"github.com/aouyang1/go-demandcast/venue"
)

var (
	ErrUnknownProfile = errors.New("unknown profile mode")
	ErrUnsafeTenant   = errors.New("tenant id is not a plain file name")
)

// runFlags are the flags of the run command
type runFlags struct {
	input   string
	output  string
	plotDir string
	profile string
	verbose bool
}

var runArgs runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for every tenant of a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		stop, err := startProfile(runArgs.profile)
		if err != nil {
			return err
		}
		defer stop()

		out := cmd.OutOrStdout()
		if runArgs.output != "" {
			f, err := os.Create(runArgs.output)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close()
			out = f
		}
		return runPipeline(cmd.Context(), cfg, runArgs, out, cmd.ErrOrStderr())
	},
}

func init() {
	runCmd.Flags().StringVar(&runArgs.input, "input", "", "JSON array of tenant snapshots (required)")
	runCmd.Flags().StringVar(&runArgs.output, "output", "", "results file (default stdout)")
	runCmd.Flags().StringVar(&runArgs.plotDir, "plot", "", "directory to write one html forecast page per tenant")
	runCmd.Flags().StringVar(&runArgs.profile, "profile", "", "profile the run, cpu or mem")
	runCmd.Flags().BoolVar(&runArgs.verbose, "verbose", false, "print every item model")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func startProfile(mode string) (func(), error) {
	switch mode {
	case "":
		return func() {}, nil
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop, nil
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop, nil
	}
	return nil, fmt.Errorf("%q, %w", mode, ErrUnknownProfile)
}

// runPipeline runs every tenant of the input snapshot and writes the results sorted by tenant.
// Tenant failures are logged and only fail the command when no tenant succeeded. Item models are
// printed to diag when verbose.
func runPipeline(ctx context.Context, c *config.Config, flags runFlags, w, diag io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opt, err := c.Options()
	if err != nil {
		return err
	}
	engine, err := demandcast.New(opt)
	if err != nil {
		return eris.Wrap(err, "init engine")
	}

	store, err := featurestore.LoadSnapshot(flags.input)
	if err != nil {
		return eris.Wrap(err, "load snapshot")
	}

	results, runErr := engine.RunAll(ctx, store)
	if runErr != nil {
		if len(results) == 0 {
			return runErr
		}
		zap.L().Warn("tenant runs failed", zap.Error(runErr))
	}

	sorted := make([]*demandcast.Result, 0, len(results))
	for _, res := range results {
		sorted = append(sorted, res)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tenant < sorted[j].Tenant })

	for _, res := range sorted {
		zap.L().Info("tenant run complete",
			zap.String("tenant", string(res.Tenant)),
			zap.String("run_id", res.RunID),
			zap.Int("items", len(res.Items)),
			zap.Int("warnings", len(res.Warnings)),
		)
		if flags.verbose {
			if err := printModels(diag, res); err != nil {
				return eris.Wrap(err, "print models")
			}
		}
		if flags.plotDir != "" {
			if err := plotTenant(flags.plotDir, res); err != nil {
				zap.L().Warn("plot failed", zap.String("tenant", string(res.Tenant)), zap.Error(err))
			}
		}
	}

	b, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode results")
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return eris.Wrap(err, "write results")
	}
	return nil
}

func printModels(w io.Writer, res *demandcast.Result) error {
	for _, item := range res.Items {
		if _, err := fmt.Fprintf(w, "%s / %s\n", res.Tenant, item.Item); err != nil {
			return err
		}
		if err := item.Model.TablePrint(w, "", "  "); err != nil {
			return err
		}
	}
	return nil
}

// plotPath is the page of a tenant inside dir. Tenant ids naming another directory are rejected.
func plotPath(dir string, tenant venue.TenantID) (string, error) {
	name := string(tenant)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("tenant %q, %w", name, ErrUnsafeTenant)
	}
	return filepath.Join(dir, name+".html"), nil
}

func plotTenant(dir string, res *demandcast.Result) error {
	path, err := plotPath(dir, res.Tenant)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return demandcast.PlotResult(f, res)
}
