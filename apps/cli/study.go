package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trezcool/kalamu/client"
	"github.com/trezcool/kalamu/client/study"
)

// studyRun is a session with its summary delivered on done.
type studyRun struct {
	*study.Session
	done chan study.Summary
}

func newStudySession(c *client.Client) *studyRun {
	done := make(chan study.Summary, 1)
	s := study.New(c,
		study.WithLogger(logger),
		study.OnComplete(func(sum study.Summary) { done <- sum }),
	)
	return &studyRun{Session: s, done: done}
}

// runStudy quizzes the user on stdin until the set is done or they quit.
func runStudy(cmd *cobra.Command, run *studyRun) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	readLine := func() (string, bool) {
		line, err := in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", false
		}
		return strings.ToLower(strings.TrimSpace(line)), true
	}

	for run.State() == study.Studying {
		card, ok := run.Card()
		if !ok {
			break
		}
		done, total := run.Progress()
		fmt.Fprintf(out, "\n[%d/%d] (%s) %s\n", done+1, total, card.Difficulty, card.Question)
		fmt.Fprint(out, "Enter to reveal, b to go back, q to quit: ")
		line, ok := readLine()
		if !ok || line == "q" {
			return nil
		}
		if line == "b" {
			run.Back()
			continue
		}

		run.Reveal()
		fmt.Fprintf(out, "Answer: %s\n", card.Answer)
	answer:
		for {
			fmt.Fprint(out, "Did you get it right? [y/n/b/q]: ")
			line, ok := readLine()
			if !ok {
				return nil
			}
			switch line {
			case "y", "yes":
				if err := run.Answer(ctx, true); err != nil {
					return err
				}
				break answer
			case "n", "no":
				if err := run.Answer(ctx, false); err != nil {
					return err
				}
				break answer
			case "b":
				run.Back()
				break answer
			case "q":
				return nil
			}
		}
	}

	select {
	case sum := <-run.done:
		fmt.Fprintf(out, "\nDone! %d/%d correct (%d%%)\n", sum.Correct, sum.Answered, sum.Accuracy)
	case <-time.After(5 * time.Second):
	}
	return nil
}

var studyCmd = &cobra.Command{
	Use:   "study SET_ID",
	Short: "Study a flashcard set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		run := newStudySession(c)
		defer run.Close()
		set, err := run.Open(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d card(s)\n", set.Title, len(set.Flashcards))
		return runStudy(cmd, run)
	},
}

func init() {
	rootCmd.AddCommand(studyCmd)
}
