package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/client/workspace"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/richtext"
)

var (
	notesFolder     string
	notesUnassigned bool
	notesFavorites  bool
	noteTitle       string
	noteFile        string
	exportFormat    string
	exportOutput    string
)

var notesCmd = &cobra.Command{
	Use:     "notes",
	Aliases: []string{"note"},
	Short:   "Manage notes",
}

// loadWorkspace returns the user's notes and folders.
func loadWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	c, err := authedClient()
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	w := workspace.New(c, workspace.WithLogger(logger))
	if err := w.Load(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func printNotes(w io.Writer, notes []note.Note, folders []note.Folder) error {
	if jsonOutput {
		if notes == nil {
			notes = []note.Note{}
		}
		return printJSON(w, notes)
	}
	names := make(map[string]string, len(folders))
	for _, f := range folders {
		names[f.ID] = f.Name
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMODULE\tTYPE\tUPDATED")
	for _, n := range notes {
		title := n.Title
		if n.IsFavorite {
			title = "* " + title
		}
		module := "-"
		if n.FolderID != nil && names[*n.FolderID] != "" {
			module = names[*n.FolderID]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, title, module, n.Type, shortDate(n.UpdatedAt))
	}
	return tw.Flush()
}

var notesListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List notes, most recently updated first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}

		var notes []note.Note
		switch {
		case notesFolder != "":
			notes = w.NotesInFolder(notesFolder)
		case notesUnassigned:
			notes = w.UnassignedNotes()
		default:
			notes = w.ListNotes()
		}
		if notesFavorites {
			favs := notes[:0]
			for _, n := range notes {
				if n.IsFavorite {
					favs = append(favs, n)
				}
			}
			notes = favs
		}
		return printNotes(cmd.OutOrStdout(), notes, w.ListFolders())
	},
}

// readContent reads markdown from path ("-" is stdin) and returns it as HTML.
func readContent(cmd *cobra.Command, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrap(err, "reading content")
	}
	html, err := richtext.MarkdownToHTML(string(b))
	return html, errors.Wrap(err, "rendering markdown")
}

// notePatch builds a patch from the --title and --file flags.
func notePatch(cmd *cobra.Command) (note.NotePatch, error) {
	var patch note.NotePatch
	if cmd.Flags().Changed("title") {
		title := noteTitle
		patch.Title = &title
	}
	if noteFile != "" {
		content, err := readContent(cmd, noteFile)
		if err != nil {
			return patch, err
		}
		patch.Content = &content
	}
	return patch, nil
}

var notesNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a note, optionally from a markdown file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := notePatch(cmd)
		if err != nil {
			return err
		}
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		n, err := w.CreateEmptyNote(ctx, notesFolder)
		if err != nil {
			return err
		}
		if !patch.IsEmpty() {
			if err := w.Edit(n.ID, patch); err != nil {
				return err
			}
			if err := w.NavigateAway(ctx); err != nil {
				return err
			}
		}
		saved, _ := w.Note(n.ID)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), saved)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s)\n", saved.Title, saved.ID)
		return nil
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show NOTE_ID",
	Short: "Print a note as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		n, err := c.GetNote(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), n)
		}
		md, err := richtext.HTMLToMarkdown(n.Content)
		if err != nil {
			return errors.Wrap(err, "converting to markdown")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s\n", n.Title, strings.TrimSpace(md))
		return nil
	},
}

var notesEditCmd = &cobra.Command{
	Use:   "edit NOTE_ID",
	Short: "Change the title or the content of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := notePatch(cmd)
		if err != nil {
			return err
		}
		if notesFolder != "" {
			folderID := notesFolder
			if folderID == "none" {
				folderID = ""
			}
			patch.FolderID = &folderID
		}
		if patch.IsEmpty() {
			return errors.New("nothing to change: pass --title, --file or --module")
		}

		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if _, err := w.SelectNote(ctx, args[0]); err != nil {
			return err
		}
		if err := w.Edit(args[0], patch); err != nil {
			return err
		}
		if err := w.NavigateAway(ctx); err != nil {
			return err
		}
		n, _ := w.Note(args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %q\n", n.Title)
		return nil
	},
}

var notesFavCmd = &cobra.Command{
	Use:   "fav NOTE_ID",
	Short: "Toggle the favorite mark of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		n, err := w.ToggleFavorite(ctx, args[0])
		if err != nil {
			return err
		}
		state := "removed from"
		if n.IsFavorite {
			state = "added to"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q %s favorites\n", n.Title, state)
		return nil
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export NOTE_ID",
	Short: "Export a note as a standalone HTML or markdown document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		body, err := c.ExportNote(ctx, args[0], note.ExportFormat(exportFormat))
		if err != nil {
			return err
		}
		if exportOutput == "" || exportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(exportOutput, body, 0o644); err != nil {
			return errors.Wrap(err, "writing export")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", exportOutput)
		return nil
	},
}

var notesRemoveCmd = &cobra.Command{
	Use:     "rm NOTE_ID",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		return c.DeleteNote(ctx, args[0])
	},
}

func init() {
	notesListCmd.Flags().StringVarP(&notesFolder, "module", "m", "", "Only notes of this module")
	notesListCmd.Flags().BoolVar(&notesUnassigned, "unassigned", false, "Only notes without a module")
	notesListCmd.Flags().BoolVar(&notesFavorites, "favorites", false, "Only favorite notes")

	notesNewCmd.Flags().StringVarP(&notesFolder, "module", "m", "", "Module of the note")
	notesNewCmd.Flags().StringVarP(&noteTitle, "title", "t", "", "Title of the note")
	notesNewCmd.Flags().StringVarP(&noteFile, "file", "f", "", `Markdown content ("-" reads stdin)`)

	notesEditCmd.Flags().StringVarP(&notesFolder, "module", "m", "", `Move to this module ("none" unassigns)`)
	notesEditCmd.Flags().StringVarP(&noteTitle, "title", "t", "", "New title")
	notesEditCmd.Flags().StringVarP(&noteFile, "file", "f", "", `New markdown content ("-" reads stdin)`)

	notesExportCmd.Flags().StringVar(&exportFormat, "format", string(note.FormatMarkdown), "html or md")
	notesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")

	notesCmd.AddCommand(notesListCmd, notesNewCmd, notesShowCmd, notesEditCmd, notesFavCmd, notesExportCmd, notesRemoveCmd)
	rootCmd.AddCommand(notesCmd)
}
