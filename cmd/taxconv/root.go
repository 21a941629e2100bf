package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/normalizer"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/service"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/session"
	"github.com/FACorreiaa/tax-table-converter/pkg/money"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	verbose   bool
	mapping   string
	timeout   time.Duration
	maxSizeMB int64
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "taxconv",
		Short: "Convert consumption-tax classification tables to CSV",
		Long: `taxconv reads the consumption-tax classification table exported by
freee (PDF), 弥生会計 (PDF) or マネーフォワード クラウド会計 (Excel) and writes
the taxable sales and purchase totals as Shift_JIS and UTF-8 CSV files.

Example Usage:
  taxconv detect 消費税区分別表.pdf
  taxconv convert 集計表.xlsx -o ./out --extract`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output for debugging")
	flags.StringVar(&opts.mapping, "mapping", "", "YAML file overriding the built-in tax classification tables")
	flags.DurationVar(&opts.timeout, "timeout", service.DefaultParseTimeout, "Maximum time spent parsing one file")
	flags.Int64Var(&opts.maxSizeMB, "max-size", 50, "Maximum input file size in MB")

	root.AddCommand(
		newConvertCmd(opts),
		newDetectCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newService builds a conversion service for one-shot use.
func (o *globalOptions) newService(logger *slog.Logger) (*service.ConversionService, error) {
	svc := service.NewConversionService(session.NewStore(0, nil), logger).
		WithParseTimeout(o.timeout)

	if o.mapping != "" {
		override, err := normalizer.LoadTablesFile(o.mapping)
		if err != nil {
			return nil, err
		}
		svc.WithNormalizer(normalizer.New(normalizer.DefaultTables().Merge(override)))
	}
	return svc, nil
}

// readInput loads the document, refusing files over the size cap.
func (o *globalOptions) readInput(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if limit := o.maxSizeMB << 20; limit > 0 && fi.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, over the %d MB limit", path, fi.Size(), o.maxSizeMB)
	}
	return os.ReadFile(path)
}

// conversionError turns a ParseError into the user-facing message.
func conversionError(err error) error {
	var perr *taxtable.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%s [%s]: %w", perr.Message, perr.Code(), perr.Kind)
	}
	return err
}

func printSummary(w io.Writer, res *taxtable.ParsedResult, verbose bool) {
	agg := res.Aggregation
	fmt.Fprintf(w, "ファイル:   %s\n", res.Filename)
	fmt.Fprintf(w, "会計ソフト: %s\n", res.Vendor.Label())
	if md := res.Metadata; md.CompanyName != "" {
		fmt.Fprintf(w, "会社名:     %s\n", md.CompanyName)
	}
	if md := res.Metadata; md.PeriodStart != "" {
		fmt.Fprintf(w, "対象期間:   %s 〜 %s\n", md.PeriodStart, md.PeriodEnd)
	}
	for _, s := range []taxtable.SideSummary{agg.Sales, agg.Purchases} {
		fmt.Fprintf(w, "%s: %d件 課税対象額 %s\n", s.Side.Label(), s.Count, money.FormatYen(s.TaxableTotal))
		if !verbose {
			continue
		}
		for _, ct := range s.Categories {
			fmt.Fprintf(w, "  %-12s %3d件 %s\n", ct.Label, ct.Count, money.FormatYen(ct.TaxableAmount))
		}
	}
	fmt.Fprintf(w, "警告: %d件 エラー: %d件\n", len(agg.Warnings), len(agg.Errors))
	if verbose {
		for _, d := range agg.Warnings {
			fmt.Fprintf(w, "  [警告] %s\n", d)
		}
		for _, d := range agg.Errors {
			fmt.Fprintf(w, "  [エラー] %s\n", d)
		}
	}
}
