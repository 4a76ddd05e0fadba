package main

import (
	"context"

	"github.com/trezcool/portal/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	sp := user.NewSetUserPassword(usr, pwd, pwd)
	if err = sp.Validate(cli.validate); err != nil {
		return cli.describe(err)
	}
	return cli.usrSvc.SetPassword(ctx, sp)
}
