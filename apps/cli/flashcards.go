package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/quota"
)

var (
	setsFolder    string
	genNoteIDs    []string
	genTitle      string
	genCount      int
	genDifficulty string
	genModel      string
	genStudyAfter bool
)

var flashcardsCmd = &cobra.Command{
	Use:     "flashcards",
	Aliases: []string{"fc"},
	Short:   "Manage flashcard sets",
}

var flashcardsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List flashcard sets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		sets, err := c.ListSets(ctx, setsFolder)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sets)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSTUDIED\tCREATED")
		for _, s := range sets {
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", s.ID, s.Title, s.StudiedCards, s.TotalCards, shortDate(s.CreatedAt))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if setsFolder != "" {
			st, err := c.FlashcardStats(ctx, setsFolder)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d set(s), %d card(s), %d studied\n", st.Sets, st.Cards, st.StudiedCards)
		}
		return nil
	},
}

var flashcardsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a flashcard set from notes of a module",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		if setsFolder == "" || len(genNoteIDs) == 0 || genTitle == "" {
			return errors.New("--module, --notes and --title are required")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		req := flashcard.GenerateRequest{
			NoteIDs:    genNoteIDs,
			FolderID:   setsFolder,
			Title:      genTitle,
			CardCount:  genCount,
			Difficulty: flashcard.Difficulty(genDifficulty),
			Model:      genModel,
		}
		session := newStudySession(c)
		defer session.Close()
		fmt.Fprintln(cmd.ErrOrStderr(), "Generating flashcards...")
		set, err := session.Generate(ctx, req)
		if qe, ok := quota.AsExceeded(err); ok {
			printQuota(cmd, qe)
			return nil
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), set)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s) with %d card(s)\n", set.Title, set.ID, len(set.Flashcards))
		if genStudyAfter {
			return runStudy(cmd, session)
		}
		return nil
	},
}

var flashcardsRemoveCmd = &cobra.Command{
	Use:     "rm SET_ID",
	Aliases: []string{"delete"},
	Short:   "Delete a flashcard set",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		return c.DeleteSet(ctx, args[0])
	},
}

func init() {
	flashcardsListCmd.Flags().StringVarP(&setsFolder, "module", "m", "", "Only sets of this module")

	flashcardsGenerateCmd.Flags().StringVarP(&setsFolder, "module", "m", "", "Module of the set")
	flashcardsGenerateCmd.Flags().StringSliceVar(&genNoteIDs, "notes", nil, "IDs of the source notes")
	flashcardsGenerateCmd.Flags().StringVarP(&genTitle, "title", "t", "", "Title of the set")
	flashcardsGenerateCmd.Flags().IntVarP(&genCount, "count", "n", 10, "Number of cards: 5, 10, 15, 20 or -1 for a full set")
	flashcardsGenerateCmd.Flags().StringVar(&genDifficulty, "difficulty", string(flashcard.DifficultyMixed), "mixed, easy, medium or hard")
	flashcardsGenerateCmd.Flags().StringVar(&genModel, "model", "", "AI model to use")
	flashcardsGenerateCmd.Flags().BoolVar(&genStudyAfter, "study", false, "Study the set right away")

	flashcardsCmd.AddCommand(flashcardsListCmd, flashcardsGenerateCmd, flashcardsRemoveCmd)
	rootCmd.AddCommand(flashcardsCmd)
}
