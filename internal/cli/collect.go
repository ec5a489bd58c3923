package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bouncestorage/bounce-stats/pkg/humanfmt"
	"github.com/bouncestorage/bounce-stats/pkg/logging"
	"github.com/bouncestorage/bounce-stats/pkg/report"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

type collectOptions struct {
	format      string
	parquetPath string
	upload      bool
}

func newCollectCmd(g *globalOptions) *cobra.Command {
	opts := &collectOptions{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one aggregation and print the result set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", formatTable, "output format: table or json")
	cmd.Flags().StringVar(&opts.parquetPath, "parquet", "", "also write the result set to this Parquet file")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "upload the Parquet report to the configured S3 bucket")
	return cmd
}

func runCollect(cmd *cobra.Command, g *globalOptions, opts *collectOptions) error {
	if opts.format != formatTable && opts.format != formatJSON {
		return fmt.Errorf("--format must be %q or %q, got %q", formatTable, formatJSON, opts.format)
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if opts.upload && cfg.Report.Bucket == "" {
		return errors.New("--upload requires report.bucket in the config file")
	}

	ctx := cmd.Context()
	log := logging.WithComponent("collect")

	client, err := newQuerier(cfg)
	if err != nil {
		return err
	}
	aggOpts, closeNotifier, err := natsNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	agg := usagestats.NewAggregator(client, aggOpts...)
	run := agg.GetStats(ctx, cfg.ObjectStores)
	if _, err := run.Wait(ctx); err != nil {
		return fmt.Errorf("wait for aggregation: %w", err)
	}
	c, _ := run.Completion()

	out := cmd.OutOrStdout()
	switch opts.format {
	case formatJSON:
		if err := report.WriteJSON(out, c); err != nil {
			return err
		}
	default:
		if err := writeTable(out, c); err != nil {
			return err
		}
	}

	if opts.parquetPath != "" {
		if err := report.WriteParquetFile(opts.parquetPath, c); err != nil {
			return err
		}
		log.Info().Str("path", opts.parquetPath).Msg("parquet report written")
	}

	if opts.upload {
		uploader, err := report.NewUploader(ctx, cfg.Report.Bucket, cfg.Report.Prefix, cfg.Report.Region)
		if err != nil {
			return err
		}
		if _, err := uploader.Upload(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, c usagestats.Completion) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STORE\tSIZE\tBYTES\tOBJECTS")
	for _, s := range c.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			s.Key, humanfmt.Bytes(s.Data.Size), s.Data.Size, humanfmt.Count(s.Data.Objects))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	_, err := fmt.Fprintf(w, "\nrun %s completed in %s\n", c.RunID, humanfmt.Duration(c.Duration()))
	return err
}
