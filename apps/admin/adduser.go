package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isPro bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}

	now := user.NowFunc().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	found := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Email:     email,
			Plan:      quota.PlanFree,
			CreatedAt: now,
		}
	}
	usr.Name = name
	usr.Username = uname
	usr.UpdatedAt = now
	if isPro {
		usr.Plan = quota.PlanPro
	}
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if found {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, []user.User{usr}); err != nil {
			return err
		}
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, nil); err != nil {
			return err
		}
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("user %s (%s) is ready on the %s plan\n", usr.Username, usr.Email, usr.Plan)
	return nil
}
