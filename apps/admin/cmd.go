package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	usrSvc   user.Service
	quotaSvc quota.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-pro] - create or update an active user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  setplan -username USERNAME|EMAIL -plan free|pro - change user's subscription plan")
	fmt.Println("  pruneusage [-keep MONTHS] - delete the usage counters older than MONTHS")
}

// promptPassword reads a password from the terminal; an empty one prints usage.
func promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to the username).")
	addUserPro := addUserCmd.Bool("pro", false, "Put the user on the pro plan.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	setPlanCmd := flag.NewFlagSet("setplan", flag.ContinueOnError)
	setPlanUname := setPlanCmd.String("username", "", "The user's username or email.")
	setPlanPlan := setPlanCmd.String("plan", "", "The new plan: free or pro.")

	pruneUsageCmd := flag.NewFlagSet("pruneusage", flag.ContinueOnError)
	pruneUsageKeep := pruneUsageCmd.Int("keep", 12, "How many months of usage to keep, the current one included.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserPro)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "setplan":
		if err := setPlanCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setPlanUname == "" || *setPlanPlan == "" {
			setPlanCmd.Usage()
			return errHelp
		}
		return cli.setPlan(*setPlanUname, quota.Plan(strings.ToLower(*setPlanPlan)))
	case "pruneusage":
		if err := pruneUsageCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *pruneUsageKeep < 1 {
			pruneUsageCmd.Usage()
			return errHelp
		}
		return cli.pruneUsage(*pruneUsageKeep)
	default:
		cli.printUsage()
		return errHelp
	}
}
