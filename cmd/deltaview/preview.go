package main

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/justapithecus/deltaview/deltaview"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newPreviewCommand(a *app) *cobra.Command {
	var (
		format string
		rows   int
		bytes  int
	)
	cmd := &cobra.Command{
		Use:   "preview <key>",
		Short: "Print a bounded preview of an object or Delta table as JSON",
		Long:  "Print a bounded preview of an object as JSON. Use --format delta with a folder key to read a Delta Lake table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hint, err := deltaview.ParseFormatTag(format)
			if err != nil {
				return err
			}
			limits := a.cfg.Limits()
			if rows > 0 {
				limits.RowLimit = rows
			}
			if bytes > 0 {
				limits.ByteCap = bytes
			}

			p, _, err := a.previewer(cmd.Context())
			if err != nil {
				return err
			}
			ref := deltaview.NewObjectRef(args[0])
			if hint == deltaview.FormatDelta {
				ref = deltaview.NewObjectRef(args[0], "")
			}
			res, err := p.Preview(cmd.Context(), ref, hint, limits)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&format, "format", "auto", "format hint (auto, csv, parquet, avro, json, xml, delta, text, binary)")
	cmd.Flags().IntVar(&rows, "rows", 0, "row limit (default MAX_PREVIEW_ROWS)")
	cmd.Flags().IntVar(&bytes, "bytes", 0, "byte cap for raw views (default MAX_PREVIEW_BYTES)")
	return cmd
}
