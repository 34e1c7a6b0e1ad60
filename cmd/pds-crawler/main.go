// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// pds-crawler harvests planetary data descriptions from the ODE web
// service and the PDS3 archive website and materializes them as a STAC
// tree on local storage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdssp/pds-crawler/internal/etl"
	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/storage"
)

var (
	rootCmd = &cobra.Command{
		Use:   "pds-crawler",
		Short: "ETL indexing PDS data into a STAC tree",
	}
	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Download collection descriptors, record pages, or PDS3 catalog files",
		RunE:  cmdExtract,
	}
	transformCmd = &cobra.Command{
		Use:   "transform",
		Short: "Build the STAC tree from downloaded data",
		RunE:  cmdTransform,
	}
	checkExtractCmd = &cobra.Command{
		Use:   "check-extract",
		Short: "Report missing record pages and PDS3 files per collection",
		RunE:  cmdCheckExtract,
	}
	resetCmd = &cobra.Command{
		Use:   "reset {files|stac|collection}",
		Short: "Scoped deletion of local state",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdReset,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: discover, extract, transform",
		RunE:  cmdRun,
	}

	config struct {
		etl.Config
		LogLevel    string
		Progress    bool
		Planet      string
		DatasetID   string
		Sample      int
		ExtractType string
		StacType    string
		Fingerprint string
	}
)

func init() {
	rootCmd.AddCommand(extractCmd, transformCmd, checkExtractCmd, resetCmd, runCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&config.Root, "database", ".pds", "storage root directory")
	flags.StringVar(&config.LogLevel, "level", "info", "log level")
	flags.BoolVar(&config.Progress, "progress-bar", false, "show download progress bars")
	flags.StringVar(&config.Planet, "planet", "", "restrict to one target body")
	flags.StringVar(&config.DatasetID, "dataset-id", "", "restrict to one dataset id")
	flags.IntVar(&config.Sample, "sample", 0, "bound extraction to the first N record pages")
	flags.StringVar(&config.ODE.RestEndpoint, "ode-endpoint", "https://oderest.rsl.wustl.edu/live2/", "ODE REST endpoint")
	flags.StringVar(&config.ODE.WebsiteEndpoint, "website-endpoint", "https://ode.rsl.wustl.edu", "archive website base URL")
	flags.IntVar(&config.ODE.PageSize, "page-size", 1000, "records per page request")
	flags.IntVar(&config.Fetch.MaxInFlight, "max-in-flight", 6, "maximum concurrent downloads")
	flags.IntVar(&config.Fetch.PerHostCap, "per-host-cap", 3, "maximum concurrent downloads per host")
	flags.IntVar(&config.Fetch.MaxAttempts, "retries", 4, "attempts per request")
	flags.DurationVar(&config.Fetch.BackoffFloor, "backoff-floor", time.Second, "first retry delay")
	flags.DurationVar(&config.Fetch.BackoffCap, "backoff-cap", 30*time.Second, "maximum retry delay")
	flags.DurationVar(&config.Fetch.ConnectTimeout, "connect-timeout", 15*time.Second, "dial timeout per attempt")
	flags.DurationVar(&config.Fetch.ReadTimeout, "read-timeout", 3*time.Minute, "read timeout per attempt")
	config.Fetch.UserAgent = "pds-crawler"

	extractCmd.Flags().StringVar(&config.ExtractType, "type",
		"ode_records", "one of ode_collections, ode_collections_save, ode_records, pds3_objects")
	transformCmd.Flags().StringVar(&config.StacType, "type",
		"records", "one of records, pds3_objects")
	resetCmd.Flags().StringVar(&config.Fingerprint, "fingerprint", "",
		"collection key target/mission/host/instrument/dataset_id (for scope collection)")
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func withDriver(cmd *cobra.Command, fn func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	driver, err := etl.New(log, config.Config, config.Progress)
	if err != nil {
		return err
	}
	defer func() { _ = driver.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, log, driver)
}

func selection() etl.Selection {
	return etl.Selection{
		Planet:    config.Planet,
		DatasetID: config.DatasetID,
		Sample:    config.Sample,
	}
}

func cmdExtract(cmd *cobra.Command, args []string) error {
	return withDriver(cmd, func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error {
		switch config.ExtractType {
		case "ode_collections":
			stats, err := driver.Discover(ctx, config.Planet, false)
			if err != nil {
				return err
			}
			log.Info("discovery", zap.Int("found", stats.Found), zap.Int("kept", stats.Kept))
			return nil
		case "ode_collections_save":
			_, err := driver.Discover(ctx, config.Planet, true)
			return err
		case "ode_records":
			return driver.ExtractRecords(ctx, selection())
		case "pds3_objects":
			return driver.ExtractPDS3(ctx, selection())
		default:
			return fmt.Errorf("unknown extract type %q", config.ExtractType)
		}
	})
}

func cmdTransform(cmd *cobra.Command, args []string) error {
	return withDriver(cmd, func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error {
		switch config.StacType {
		case "records":
			return driver.TransformRecords(ctx, selection())
		case "pds3_objects":
			return driver.TransformPDS3(ctx, selection())
		default:
			return fmt.Errorf("unknown transform type %q", config.StacType)
		}
	})
}

func cmdCheckExtract(cmd *cobra.Command, args []string) error {
	return withDriver(cmd, func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error {
		summaries, err := driver.CheckExtract(ctx, selection())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	})
}

func cmdReset(cmd *cobra.Command, args []string) error {
	return withDriver(cmd, func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error {
		var scope storage.Scope
		var fp pds.Fingerprint
		switch args[0] {
		case "files":
			scope = storage.ScopeFiles
		case "stac":
			scope = storage.ScopeStac
		case "collection":
			scope = storage.ScopeCollection
			parts := strings.Split(config.Fingerprint, "/")
			if len(parts) != 5 {
				return fmt.Errorf("--fingerprint must have five /-separated elements")
			}
			fp = pds.Fingerprint{
				Target: parts[0], Mission: parts[1], Host: parts[2],
				Instrument: parts[3], DatasetID: parts[4],
			}
		default:
			return fmt.Errorf("unknown reset scope %q", args[0])
		}
		return driver.Reset(ctx, scope, fp)
	})
}

func cmdRun(cmd *cobra.Command, args []string) error {
	return withDriver(cmd, func(ctx context.Context, log *zap.Logger, driver *etl.Driver) error {
		return driver.Run(ctx, selection())
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
