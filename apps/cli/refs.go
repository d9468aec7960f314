package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/reference"
)

var (
	refsFetch bool
	refsStyle string
)

var refsCmd = &cobra.Command{
	Use:   "refs NOTE_ID",
	Short: "Show the academic references of a note; --fetch asks the AI for new ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		var refs []reference.Reference
		if refsFetch {
			refs, err = c.FetchReferences(ctx, args[0], reference.Style(refsStyle))
		} else {
			refs, err = c.ListReferences(ctx, args[0])
		}
		if qe, ok := quota.AsExceeded(err); ok {
			printQuota(cmd, qe)
			return nil
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), refs)
		}
		out := cmd.OutOrStdout()
		if len(refs) == 0 {
			fmt.Fprintln(out, "No references yet; run again with --fetch")
			return nil
		}
		for _, r := range refs {
			fmt.Fprintf(out, "%d. %s\n", r.Position+1, r.Citation)
			if r.URL != "" {
				fmt.Fprintf(out, "   %s\n", r.URL)
			}
		}
		return nil
	},
}

// printQuota explains an exhausted quota instead of failing.
func printQuota(cmd *cobra.Command, qe *quota.ExceededError) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Monthly limit reached: %d of %d %s used.\n", qe.Used, qe.Limit, qe.Feature.Label())
	fmt.Fprintln(out, qe.Message())
}

func init() {
	refsCmd.Flags().BoolVar(&refsFetch, "fetch", false, "Fetch new references (uses AI quota)")
	refsCmd.Flags().StringVar(&refsStyle, "style", string(reference.DefaultStyle), "Citation style: apa, mla, chicago, harvard or ieee")
	rootCmd.AddCommand(refsCmd)
}
