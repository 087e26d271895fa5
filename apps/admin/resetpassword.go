package main

import (
	"context"
	"time"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}

	upd := user.User{ID: usr.ID, UpdatedAt: time.Now().UTC()}
	if err := upd.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, upd, nil); err != nil {
		return err
	}
	return nil
}
