package main

import (
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/client/upload"
	"github.com/trezcool/kalamu/core/lecture"
)

var (
	uploadTitle  string
	uploadFolder string
	uploadDetail string
	uploadModel  string
)

// progressPrinter prints a line whenever the phase or the percentage changes.
type progressPrinter struct {
	mu    sync.Mutex
	cmd   *cobra.Command
	phase string
	pct   int
}

func (p *progressPrinter) print(st upload.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.State < upload.Converting || st.State > upload.Processing {
		return
	}
	pct := st.DisplayProgress()
	if st.Phase == p.phase && pct == p.pct {
		return
	}
	p.phase, p.pct = st.Phase, pct

	line := fmt.Sprintf("[%3d%%] %s · %s", pct, upload.Stages[st.Stage], st.Phase)
	if st.ETA != "" {
		line += " (" + st.ETA + ")"
	}
	fmt.Fprintln(p.cmd.ErrOrStderr(), line)
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Turn lecture slides (PDF or PowerPoint) into a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "reading file")
		}

		printer := &progressPrinter{cmd: cmd}
		u := upload.New(upload.FromClient(c), upload.WithLogger(logger), upload.OnChange(printer.print))
		defer u.Close()

		f := upload.File{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
			Data:        data,
		}
		if err := u.Select(f); err != nil {
			return err
		}
		if uploadTitle != "" {
			u.SetTitle(uploadTitle)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		n, err := u.Submit(ctx, upload.Options{
			FolderID: uploadFolder,
			Detail:   lecture.Detail(uploadDetail),
			Model:    uploadModel,
		})
		if err != nil {
			if prompt := u.Status().Upgrade; prompt != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s limit reached.\n%s\n", prompt.Feature, prompt.Description)
				if !prompt.HideUpgrade {
					fmt.Fprintln(cmd.ErrOrStderr(), "Upgrade your plan to keep uploading this month.")
				}
				return errors.New("quota exceeded")
			}
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), n)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s) from %d page(s)\n", n.Title, n.ID, n.PageCount)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "Title of the note (default: file name)")
	uploadCmd.Flags().StringVarP(&uploadFolder, "module", "m", "", "Module of the note")
	uploadCmd.Flags().StringVar(&uploadDetail, "detail", "", "summary, detailed or expert")
	uploadCmd.Flags().StringVar(&uploadModel, "model", "", "AI model to use")
	rootCmd.AddCommand(uploadCmd)
}
