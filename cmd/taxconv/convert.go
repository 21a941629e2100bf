package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/bundle"
	"github.com/FACorreiaa/tax-table-converter/pkg/storage"
)

type convertOptions struct {
	outDir  string
	extract bool
	force   bool
}

func newConvertCmd(global *globalOptions) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a tax classification table into the CSV archive",
		Long: `convert detects the accounting software of <file>, totals the taxable
amounts per tax category and writes 消費税集計_<name>.zip to the output
directory. With --extract the CSV and text files are written next to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "output", "o", ".", "Directory the archive is written to")
	cmd.Flags().BoolVar(&opts.extract, "extract", false, "Also write the individual files of the archive")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite existing output files")
	return cmd
}

func runConvert(cmd *cobra.Command, global *globalOptions, opts *convertOptions, path string) error {
	ctx := cmd.Context()
	logger := global.logger(cmd.ErrOrStderr())

	data, err := global.readInput(path)
	if err != nil {
		return err
	}
	svc, err := global.newService(logger)
	if err != nil {
		return err
	}
	res, err := svc.DetectAndParse(ctx, data, filepath.Base(path))
	if err != nil {
		return conversionError(err)
	}

	b, err := bundle.Build(res)
	if err != nil {
		return err
	}
	archive, err := b.Zip()
	if err != nil {
		return err
	}

	store, err := storage.New(&storage.Config{LocalPath: opts.outDir, Overwrite: opts.force})
	if err != nil {
		return err
	}
	archiveName := bundle.ArchiveName(path)
	targets := []string{archiveName}
	if opts.extract {
		for _, f := range b.Files {
			targets = append(targets, f.Name)
		}
	}
	existing, err := existingOutputs(ctx, store, targets)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !opts.force {
		return fmt.Errorf("%s (use --force to overwrite): %w", strings.Join(existing, ", "), storage.ErrExists)
	}

	info, err := store.Save(ctx, archiveName, bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if opts.extract {
		for _, f := range b.Files {
			if _, err := store.Save(ctx, f.Name, bytes.NewReader(f.Data)); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
		}
	}

	out := cmd.OutOrStdout()
	printSummary(out, res, global.verbose)
	for _, name := range existing {
		fmt.Fprintf(out, "  [上書き] %s\n", name)
	}
	for _, w := range b.Warnings {
		fmt.Fprintf(out, "  [出力時の警告] %s\n", w)
	}
	fmt.Fprintf(out, "出力: %s (%d bytes)\n", info.Path, info.Size)
	return nil
}

// existingOutputs returns the targets already present in the output
// directory, in target order.
func existingOutputs(ctx context.Context, store storage.Storage, targets []string) ([]string, error) {
	files, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Name] = true
	}
	var out []string
	for _, name := range targets {
		if present[name] {
			out = append(out, name)
		}
	}
	return out, nil
}
