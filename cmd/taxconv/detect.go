package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDetectCmd(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Show the detected accounting software and totals without writing files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := global.logger(cmd.ErrOrStderr())
			data, err := global.readInput(args[0])
			if err != nil {
				return err
			}
			svc, err := global.newService(logger)
			if err != nil {
				return err
			}
			res, err := svc.DetectAndParse(cmd.Context(), data, filepath.Base(args[0]))
			if err != nil {
				return conversionError(err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printSummary(cmd.OutOrStdout(), res, global.verbose)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full conversion result as JSON")
	return cmd
}
