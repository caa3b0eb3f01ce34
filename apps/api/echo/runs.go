package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/message"
	"github.com/trezcool/mashovsend/core/run"
)

const (
	mimeEventStream = "text/event-stream"
	defaultRunLimit = 20
)

type runApi struct {
	srv *server
}

func registerRunAPI(g *echo.Group, jwt echo.MiddlewareFunc, srv *server) {
	api := runApi{srv: srv}

	rg := g.Group("/runs", jwt)
	rg.POST("", api.runCreate)
	rg.GET("", api.runQuery)
	rg.GET("/:id", api.runOutcomes)
}

type runOptions struct {
	run.Options
	Limit int
}

func bindRunOptions(ctx echo.Context) (runOptions, error) {
	opts := runOptions{
		Options: run.Options{
			Subject:      ctx.FormValue("subject"),
			Body:         ctx.FormValue("body"),
			DryRun:       formBool(ctx, "dry_run"),
			SendViaEmail: formBool(ctx, "send_email"),
			Markdown:     formBool(ctx, "markdown"),
		},
	}
	if v := ctx.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be a positive number"})
		}
		opts.Limit = n
	}

	if err := message.Validate(opts.Subject, opts.Body, opts.Markdown); err != nil {
		var cErr *message.CompositionError
		if errors.As(err, &cErr) {
			return opts, core.NewValidationError(err, core.FieldError{Field: cErr.Part, Error: cErr.Err.Error()})
		}
		return opts, err
	}
	return opts, nil
}

// formBool accepts checkbox values ("on") as well as strconv booleans.
func formBool(ctx echo.Context, name string) bool {
	v := ctx.FormValue(name)
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// runCreate logs in with the vaulted credentials and streams the run's events as server-sent events.
// The run stops between two records when the client goes away.
func (api *runApi) runCreate(ctx echo.Context) error {
	creds, claims, err := api.srv.auth.credentials(ctx)
	if err != nil {
		return err
	}
	opts, err := bindRunOptions(ctx)
	if err != nil {
		return err
	}
	tbl, err := readUploadedTable(ctx, bindColumns(ctx))
	if err != nil {
		return err
	}
	tbl = tbl.Limit(opts.Limit)

	reqCtx := ctx.Request().Context()
	client, err := api.srv.newPortalClient(creds)
	if err != nil {
		return err
	}
	acc, err := client.Login(reqCtx)
	api.srv.deps.Metrics.login(err)
	if err != nil {
		return err
	}
	opts.Account = acc.DisplayName

	deps := []run.RunnerOption{run.WithLogger(api.srv.deps.Logger)}
	if api.srv.deps.Store != nil {
		deps = append(deps, run.WithJournal(api.srv.deps.Store))
	}
	runner := run.NewRunner(client, opts.Options, deps...)

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, mimeEventStream)
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	stream := &eventStream{res: res}
	r := runner.Start(reqCtx, tbl.Records)
	for r.Next() {
		ev := r.Event()
		switch ev.Kind {
		case run.EventOutcome:
			api.srv.deps.Metrics.outcome(*ev.Outcome)
		case run.EventSummary:
			// the failed rows file is announced before the terminal event
			if msg := api.report(tbl.Header, *ev.Summary, claims.Operator()); msg != "" {
				stream.send(run.Event{Kind: run.EventLog, Index: -1, Message: msg})
			}
			api.srv.deps.Metrics.finished(*ev.Summary, opts.DryRun)
		}
		stream.send(ev)
	}
	if err := r.Err(); err != nil && err != reqCtx.Err() {
		api.srv.deps.Logger.Warn(fmt.Sprintf("run %s stopped: %v", r.ID(), err), claims.Operator())
	}
	if stream.err != nil {
		api.srv.deps.Logger.Debug(fmt.Sprintf("run %s: client went away: %v", r.ID(), stream.err))
	}
	return nil
}

// report writes the failed rows file and mails the operator. It returns a line for the stream, if any.
func (api *runApi) report(header []string, sum run.Summary, op core.Operator) string {
	conf := api.srv.deps.Conf
	var line string

	if sum.FailureCount > 0 {
		name := sum.RunID + "-errors.csv"
		if err := writeFailedRows(filepath.Join(conf.Server.UploadDir, name), header, sum); err != nil {
			api.srv.deps.Logger.Error(fmt.Sprintf("run %s: writing failed rows: %v", sum.RunID, err), err, op)
		} else {
			line = "[INFO] failed rows written to " + name
		}
	}

	if api.srv.deps.Mailer != nil && conf.Email.OperatorEmail != "" {
		to := []mail.Address{{Address: conf.Email.OperatorEmail}}
		// the request context is cancelled when the client goes away; the operator still gets the summary
		if err := run.Notify(context.Background(), api.srv.deps.Mailer, to, sum, header); err != nil {
			api.srv.deps.Logger.Error(fmt.Sprintf("run %s: notifying operator: %v", sum.RunID, err), err, op)
		}
	}
	return line
}

func writeFailedRows(path string, header []string, sum run.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating upload dir")
	}
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

func (api *runApi) runQuery(ctx echo.Context) error {
	limit := defaultRunLimit
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be a positive number"})
		}
		limit = n
	}
	if api.srv.deps.Store == nil {
		return ctx.JSON(http.StatusOK, []run.RunRecord{})
	}

	runs, err := api.srv.deps.Store.ListRuns(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "listing runs")
	}
	if runs == nil {
		runs = []run.RunRecord{}
	}
	return ctx.JSON(http.StatusOK, runs)
}

func (api *runApi) runOutcomes(ctx echo.Context) error {
	if api.srv.deps.Store == nil {
		return errHttpNotFound
	}
	outcomes, err := api.srv.deps.Store.RunOutcomes(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reading run outcomes")
	}
	if len(outcomes) == 0 {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, outcomes)
}

// eventStream writes run events as `data: <json>` server-sent events. It stops writing after the first error.
type eventStream struct {
	res *echo.Response
	err error
}

func (s *eventStream) send(ev run.Event) {
	if s.err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.err = errors.Wrap(err, "encoding event")
		return
	}
	if _, err := fmt.Fprintf(s.res, "data: %s\n\n", data); err != nil {
		s.err = err
		return
	}
	s.res.Flush()
}
