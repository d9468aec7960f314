package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	loginUsername string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		uname := strings.TrimSpace(loginUsername)
		if uname == "" {
			fmt.Fprint(out, "Username or email: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.Wrap(err, "reading username")
			}
			uname = strings.TrimSpace(line)
		}
		fmt.Fprint(out, "Password: ")
		pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return errors.Wrap(err, "reading password")
		}

		c, creds, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Login(ctx, uname, string(pwd))
		if err != nil {
			return err
		}

		creds.Server = serverURL(creds)
		creds.Token = res.Token
		if res.User != nil {
			creds.Username = res.User.Username
		}
		if err := creds.save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s\n", creds.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := loadCredentials()
		if err != nil {
			return err
		}
		creds.Token, creds.Username = "", ""
		return creds.save()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user and their plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c, err := authedClient()
		if err != nil {
			return err
		}
		usr, err := c.Me(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), usr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s plan)\n", usr.Username, usr.Email, usr.Plan)
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show this month's AI usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c, err := authedClient()
		if err != nil {
			return err
		}
		u, err := c.Usage(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), u)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Plan: %s\n", u.Plan)
		for _, fu := range u.Usage {
			fmt.Fprintf(out, "  %-22s %d/%d (%d left)\n", fu.Label, fu.Used, fu.Limit, fu.Remaining)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username or email")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, usageCmd)
}
