package main

import (
	"context"
	"fmt"

	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = user.NowFunc().UTC()
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}

func (cli *commandLine) setPlan(uname string, plan quota.Plan) error {
	usr, err := cli.usrSvc.SetPlan(context.Background(), uname, plan)
	if err != nil {
		return err
	}
	fmt.Printf("user %s is now on the %s plan\n", usr.Username, usr.Plan)
	return nil
}

func (cli *commandLine) pruneUsage(keepMonths int) error {
	n, err := cli.quotaSvc.Prune(context.Background(), keepMonths)
	if err != nil {
		return err
	}
	fmt.Printf("%d usage counters deleted\n", n)
	return nil
}
