package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/run"
	"github.com/trezcool/mashovsend/core/student"
	"github.com/trezcool/mashovsend/services/email"
	"github.com/trezcool/mashovsend/storage"
	"github.com/trezcool/mashovsend/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	logger  core.Logger
	out     io.Writer
	printer printer

	// overridable in tests
	openStore func(ctx context.Context) (run.Store, func() error, error)
	openDB    func(ctx context.Context) (*sqlx.DB, error)
	mailer    func() (core.EmailService, error)
}

func newCommandLine(conf *core.Config, logger core.Logger, out io.Writer) *commandLine {
	cli := &commandLine{
		conf:    conf,
		logger:  logger,
		out:     out,
		printer: newPrinter(out),
	}
	cli.openStore = func(ctx context.Context) (run.Store, func() error, error) {
		return storage.NewStore(ctx, conf.Database, true)
	}
	cli.openDB = func(ctx context.Context) (*sqlx.DB, error) {
		if conf.Database.Engine == "" {
			return nil, errors.New("no database configured (set database.engine to postgres or sqlite)")
		}
		return database.Open(ctx, conf.Database)
	}
	cli.mailer = func() (core.EmailService, error) {
		return emailsvc.New(conf, out)
	}
	return cli
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  send -csv FILE [-subject S] [-template T | -template-file F] [-dry-run] [-send-email] [-limit N] - send one message per student")
	fmt.Fprintln(cli.out, "  export -csv FILE -out FILE [-subject S] [-template T | -template-file F] [-limit N] - compose messages without contacting the portal")
	fmt.Fprintln(cli.out, "  login - check the portal credentials")
	fmt.Fprintln(cli.out, "  recipients [-list] - count (or list) the account's mail recipients")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  history [-limit N] [-run ID] - show journaled runs")
	fmt.Fprintln(cli.out, "Portal credentials come from MASHOV_USER, MASHOV_PASS, MASHOV_YEAR and MASHOV_SEMEL,")
	fmt.Fprintln(cli.out, "or the -username, -year and -semel flags; a missing password is prompted for.")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "send":
		return cli.send(ctx, args[2:])
	case "export":
		return cli.export(args[2:])
	case "login":
		return cli.login(ctx, args[2:])
	case "recipients":
		return cli.recipients(ctx, args[2:])
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "history":
		return cli.history(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// tableFlags are the input file flags shared by send and export.
type tableFlags struct {
	csv          string
	limit        int
	subject      string
	template     string
	templateFile string
	markdown     bool
	cols         student.Columns
}

func (tf *tableFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&tf.csv, "csv", "userlist.csv", "Input CSV path (UTF-8).")
	fs.IntVar(&tf.limit, "limit", 0, "Only process the first N rows.")
	fs.StringVar(&tf.subject, "subject", "", "Subject template (defaults to the standard credentials subject).")
	fs.StringVar(&tf.template, "template", "", "Body template (defaults to the standard credentials message).")
	fs.StringVar(&tf.templateFile, "template-file", "", "Read the body template from this file.")
	fs.BoolVar(&tf.markdown, "markdown", false, "The body template is Markdown.")
	fs.StringVar(&tf.cols.ID, "id-col", student.DefaultColumns.ID, "Identifier column header.")
	fs.StringVar(&tf.cols.First, "first-col", student.DefaultColumns.First, "First name column header.")
	fs.StringVar(&tf.cols.Last, "last-col", student.DefaultColumns.Last, "Last name column header.")
	fs.StringVar(&tf.cols.Username, "username-col", student.DefaultColumns.Username, "Username column header.")
	fs.StringVar(&tf.cols.UsernameWithDomain, "domain-col", student.DefaultColumns.UsernameWithDomain, "Username with domain column header.")
	fs.StringVar(&tf.cols.Password, "password-col", student.DefaultColumns.Password, "Password column header.")
}

func (tf *tableFlags) body() (string, error) {
	if tf.templateFile == "" {
		return tf.template, nil
	}
	b, err := os.ReadFile(tf.templateFile)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (tf *tableFlags) read() (student.Table, error) {
	f, err := os.Open(tf.csv)
	if err != nil {
		return student.Table{}, err
	}
	defer f.Close()

	tbl, err := student.ReadTable(f, tf.cols.Merge(student.DefaultColumns))
	if err != nil {
		return student.Table{}, err
	}
	return tbl.Limit(tf.limit), nil
}
