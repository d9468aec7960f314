package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/core/note"
)

var (
	folderColor       string
	folderDescription string
)

var foldersCmd = &cobra.Command{
	Use:     "folders",
	Aliases: []string{"modules"},
	Short:   "Manage modules (folders of notes)",
}

var foldersListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List modules with their number of notes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		folders := w.ListFolders()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), folders)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tNOTES\tCOLOR")
		for _, f := range folders {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.ID, f.Name, len(w.NotesInFolder(f.ID)), f.Color)
		}
		fmt.Fprintf(tw, "-\t(unassigned)\t%d\t\n", len(w.UnassignedNotes()))
		return tw.Flush()
	},
}

var foldersNewCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Create a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		f, err := w.CreateFolder(ctx, note.NewFolder{Name: args[0], Color: folderColor, Description: folderDescription})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), f)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created module %q (%s)\n", f.Name, f.ID)
		return nil
	},
}

var foldersRemoveCmd = &cobra.Command{
	Use:     "rm MODULE_ID",
	Aliases: []string{"delete"},
	Short:   "Delete a module; its notes are kept unassigned, its flashcards are deleted",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		moved := len(w.NotesInFolder(args[0]))
		if err := w.DeleteFolder(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted module, %d note(s) unassigned\n", moved)
		return nil
	},
}

func init() {
	foldersNewCmd.Flags().StringVar(&folderColor, "color", "", "Hex color, eg: #6366f1")
	foldersNewCmd.Flags().StringVar(&folderDescription, "description", "", "Description")

	foldersCmd.AddCommand(foldersListCmd, foldersNewCmd, foldersRemoveCmd)
	rootCmd.AddCommand(foldersCmd)
}
