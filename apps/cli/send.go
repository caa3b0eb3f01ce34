package main

import (
	"context"
	"fmt"
	"net/mail"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core/message"
	"github.com/trezcool/mashovsend/core/run"
)

func (cli *commandLine) send(ctx context.Context, args []string) error {
	var (
		tf  tableFlags
		cf  credentialFlags
		opt run.Options
	)
	fs := cli.newFlagSet("send")
	tf.register(fs)
	cf.register(fs, cli.conf)
	fs.BoolVar(&opt.DryRun, "dry-run", false, "Don't send; only resolve recipients and compose messages.")
	fs.BoolVar(&opt.SendViaEmail, "send-email", false, "Ask the portal to also deliver the messages by email.")
	failedOut := fs.String("failed-out", "errors.csv", "Where to write the rows that were not sent.")
	notify := fs.String("notify", cli.conf.Email.OperatorEmail, "Email the run summary to this address.")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	body, err := tf.body()
	if err != nil {
		return errors.Wrap(err, "reading template")
	}
	opt.Subject, opt.Body, opt.Markdown = tf.subject, body, tf.markdown
	if err := message.Validate(opt.Subject, opt.Body, opt.Markdown); err != nil {
		return err
	}

	var to []mail.Address
	if *notify != "" {
		addr, err := mail.ParseAddress(*notify)
		if err != nil {
			return errors.Wrap(err, "parsing -notify")
		}
		to = append(to, *addr)
	}

	tbl, err := tf.read()
	if err != nil {
		return err
	}

	client, err := cli.portalClient(cf)
	if err != nil {
		return err
	}
	acc, err := client.Login(ctx)
	if err != nil {
		return errors.Wrap(err, "login failed, cannot continue")
	}
	cli.printer.println(cli.printer.bold, "Logged in as: %s", acc.DisplayName)
	opt.Account = acc.DisplayName

	store, closeStore, err := cli.openStore(ctx)
	if err != nil {
		return errors.Wrap(err, "opening run journal")
	}
	defer func() { _ = closeStore() }()

	runner := run.NewRunner(client, opt, run.WithJournal(store), run.WithLogger(cli.logger))
	sum, runErr := runner.Execute(ctx, tbl.Records, cli.printer.event)
	cli.printer.summary(sum)

	if sum.FailureCount > 0 && *failedOut != "" {
		if err := cli.writeFailed(*failedOut, tbl.Header, sum); err != nil {
			return err
		}
		cli.printer.println(cli.printer.muted, "Failed rows written to %s", *failedOut)
	}

	if len(to) > 0 {
		mailer, err := cli.mailer()
		if err != nil {
			return err
		}
		// the run context may be cancelled; the operator still gets the summary
		if err := run.Notify(context.Background(), mailer, to, sum, tbl.Header); err != nil {
			cli.logger.Error(fmt.Sprintf("notifying %s: %v", *notify, err), err)
		}
	}
	return runErr
}

func (cli *commandLine) writeFailed(path string, header []string, sum run.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating failed rows file")
	}
	if err := run.WriteFailed(f, header, sum); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (cli *commandLine) export(args []string) error {
	var tf tableFlags
	fs := cli.newFlagSet("export")
	tf.register(fs)
	out := fs.String("out", "", "Output CSV path.")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return errHelp
	}

	body, err := tf.body()
	if err != nil {
		return errors.Wrap(err, "reading template")
	}
	composer, err := message.NewComposer(tf.subject, body, tf.markdown)
	if err != nil {
		return err
	}
	tbl, err := tf.read()
	if err != nil {
		return err
	}

	rows := composer.ComposeAll(tbl.Records)
	f, err := os.Create(*out)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	if err := message.WriteExport(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	for i, r := range rows {
		if r.Err != nil {
			cli.printer.println(cli.printer.warn, "[FAIL] %s: %v", tbl.Records[i].Label(), r.Err)
		}
	}
	cli.printer.println(cli.printer.ok, "Wrote %d rows to %s", len(rows), *out)
	return nil
}
