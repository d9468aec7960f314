package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search notes by title and content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		results, err := c.Search(ctx, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), results)
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No notes found")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s  %s\n    %s\n", r.Note.ID, r.Note.Title, r.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
