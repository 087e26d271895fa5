package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/user"
)

// addAdmin promotes an existing account to admin or creates a fresh one.
func (cli *commandLine) addAdmin(name, email, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:          name,
			Email:         email,
			EmailVerified: true,
			Status:        user.StatusActive,
			CreatedAt:     now,
		}
	}
	usr.Role = user.RoleAdmin
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr, nil)
	}
	return err
}
