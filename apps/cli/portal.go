package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/services/portal"
)

type credentialFlags struct {
	username string
	year     string
	semel    string
}

func (cf *credentialFlags) register(fs *flag.FlagSet, conf *core.Config) {
	fs.StringVar(&cf.username, "username", conf.Portal.Username, "Portal username.")
	fs.StringVar(&cf.year, "year", conf.Portal.Year, "Academic year (e.g. 2025).")
	fs.StringVar(&cf.semel, "semel", conf.Portal.Semel, "School code.")
}

// portalClient builds an unauthenticated client, prompting for the password when it is not configured.
func (cli *commandLine) portalClient(cf credentialFlags) (*portal.Client, error) {
	creds := portal.Credentials{
		Username: cf.username,
		Password: cli.conf.Portal.Password,
		Year:     cf.year,
		Semel:    cf.semel,
	}
	if creds.Password == "" {
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
		fmt.Fprintln(cli.out)
		if err != nil {
			return nil, errors.Wrap(err, "reading password")
		}
		creds.Password = string(pwd)
	}

	validate, translator := core.NewValidator()
	if err := creds.Validate(validate, translator); err != nil {
		return nil, describeValidation(err)
	}

	return portal.NewClient(creds,
		portal.WithBaseURL(cli.conf.Portal.BaseURL),
		portal.WithTimeout(cli.conf.Portal.Timeout),
		portal.WithUserAgent(cli.conf.Portal.UserAgent),
		portal.WithLogger(cli.logger),
	)
}

func describeValidation(err error) error {
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Fields) == 0 {
		return err
	}
	msg := "invalid credentials:"
	for _, f := range vErr.Fields {
		msg += fmt.Sprintf(" %s: %s;", f.Field, f.Error)
	}
	return errors.New(msg)
}

func (cli *commandLine) login(ctx context.Context, args []string) error {
	var cf credentialFlags
	fs := cli.newFlagSet("login")
	cf.register(fs, cli.conf)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	client, err := cli.portalClient(cf)
	if err != nil {
		return err
	}
	acc, err := client.Login(ctx)
	if err != nil {
		return errors.Wrap(err, "login failed")
	}
	cli.printer.println(cli.printer.ok, "Logged in as: %s", acc.DisplayName)
	return nil
}

func (cli *commandLine) recipients(ctx context.Context, args []string) error {
	var cf credentialFlags
	fs := cli.newFlagSet("recipients")
	cf.register(fs, cli.conf)
	list := fs.Bool("list", false, "Print every recipient as JSON.")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	client, err := cli.portalClient(cf)
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx); err != nil {
		return errors.Wrap(err, "login failed")
	}
	recipients, err := client.ListRecipients(ctx)
	if err != nil {
		return err
	}

	if *list {
		enc := json.NewEncoder(cli.out)
		enc.SetEscapeHTML(false)
		for _, r := range recipients {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}
	cli.printer.println(cli.printer.ok, "%d recipients", len(recipients))
	return nil
}
