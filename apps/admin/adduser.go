package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/portal/core/user"
)

// addUser validates & creates a user.User
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return cli.describe(err)
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Fprintf(cli.out, "user %q created (id: %s)\n", usr.Name, usr.ID)
	return nil
}
