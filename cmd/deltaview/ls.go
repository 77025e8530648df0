package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justapithecus/deltaview/deltaview"
)

func newListCommand(a *app) *cobra.Command {
	var (
		token string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List the folders and files under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := a.source(cmd.Context())
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			if limit == 0 {
				limit = a.cfg.ListPageSize
			}

			listing, err := deltaview.Browse(cmd.Context(), src, prefix, deltaview.BrowseOptions{Limit: limit, Token: token})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range listing.Folders {
				fmt.Fprintf(out, "%12s  %s\n", "DIR", f.Path)
			}
			for _, f := range listing.Files {
				fmt.Fprintf(out, "%12d  %s\n", f.Size, f.Path)
			}
			if listing.NextToken != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "more entries: --token %s\n", listing.NextToken)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 0, "entries per page (default LIST_PAGE_SIZE)")
	return cmd
}
