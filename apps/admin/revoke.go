package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

func (cli *commandLine) revoke(jti, expires string) error {
	expiresAt, err := time.Parse(time.RFC3339, expires)
	if err != nil {
		return errors.Wrap(errInput, "expires must look like 2006-01-02T15:04:05Z07:00")
	}
	if err = cli.blacklist.Add(context.Background(), jti, expiresAt); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "token %s revoked until %s\n", jti, expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func (cli *commandLine) sweep() error {
	tokens, windows, err := cli.sweeper.SweepOnce(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "swept %d blacklisted tokens and %d rate limit windows\n", tokens, windows)
	return nil
}
