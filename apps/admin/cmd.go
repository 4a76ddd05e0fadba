package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/user"
	"github.com/trezcool/portal/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.Migrate  // mockable

	errHelp  = errors.New("help provided")
	errNoDB  = errors.New("no database configured")
	errInput = errors.New("invalid input")
)

type commandLine struct {
	db         *sql.DB // nil with the memory store
	usrSvc     *user.Service
	blacklist  *auth.Blacklist
	sweeper    *auth.Sweeper
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -roles ROLE,... - create a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  revoke -jti JTI -expires RFC3339 - blacklist a token until it expires")
	fmt.Fprintln(cli.out, "  sweep - delete expired blacklist entries and stale rate limit windows")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles, eg. teacher:,admin:")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	revokeCmd := flag.NewFlagSet("revoke", flag.ContinueOnError)
	revokeCmd.SetOutput(cli.out)
	revokeJTI := revokeCmd.String("jti", "", "The token ID.")
	revokeExpires := revokeCmd.String("expires", "", "The token expiry (RFC3339); the entry is kept until then.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		confirm, err := cli.promptPassword("Confirm password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: confirm,
			Roles:           splitRoles(*addUserRoles),
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "revoke":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *revokeJTI == "" || *revokeExpires == "" {
			revokeCmd.Usage()
			return errHelp
		}
		return cli.revoke(*revokeJTI, *revokeExpires)

	case "sweep":
		return cli.sweep()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

// describe turns validation errors into a readable error.
func (cli *commandLine) describe(err error) error {
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msgs := make([]string, 0, len(vErr))
		for _, fErr := range vErr {
			msgs = append(msgs, fErr.Field()+": "+fErr.Translate(cli.translator))
		}
		sort.Strings(msgs)
		return errors.Wrap(errInput, strings.Join(msgs, "; "))
	case *core.ValidationError:
		msgs := make([]string, 0, len(vErr.Fields))
		for _, fErr := range vErr.Fields {
			msgs = append(msgs, fErr.Field+": "+fErr.Error)
		}
		if len(msgs) == 0 {
			msgs = append(msgs, vErr.Error())
		}
		return errors.Wrap(errInput, strings.Join(msgs, "; "))
	}
	return err
}

func splitRoles(s string) []string {
	var roles []string
	for _, role := range strings.Split(s, ",") {
		if role = core.CleanString(role, true /* lower */); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
