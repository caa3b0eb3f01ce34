package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/run"
	"github.com/trezcool/mashovsend/storage/inmem"
	"github.com/trezcool/mashovsend/tests"
)

const csvHeader = "ת.ז,שם פרטי,שם משפחה,שם משתמש,שם משתמש עם דומיין,סיסמא\n"

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    []string
	extra      interface{}
}

func testConfig(portalURL string) *core.Config {
	return &core.Config{
		AppName:  "MashovSend",
		Env:      "TEST",
		TestMode: true,
		Portal: core.PortalConfig{
			BaseURL:   portalURL,
			Timeout:   5 * time.Second,
			UserAgent: "test",
			Username:  testutil.Username,
			Password:  testutil.Password,
			Year:      testutil.Year,
			Semel:     testutil.Semel,
		},
		Email: core.EmailConfig{Provider: "console", DefaultFromEmail: "noreply@localhost"},
	}
}

func setup(t *testing.T) (*commandLine, *testutil.Portal, *bytes.Buffer, *inmem.RunStore) {
	p := testutil.NewPortal(t)
	p.AddStudent("012345678", testutil.Student{GUID: "g-1", FamilyName: "לוי", PrivateName: "דנה"})
	p.AddStudent("000000002", testutil.Student{GUID: "g-2"})

	var out bytes.Buffer
	cli := newCommandLine(testConfig(p.URL), core.NopLogger, &out)
	store := inmem.NewRunStore()
	cli.openStore = func(context.Context) (run.Store, func() error, error) {
		return store, func() error { return nil }, nil
	}
	return cli, p, &out, store
}

func writeCSV(t *testing.T, rows ...string) string {
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvHeader+strings.Join(rows, "\n")+"\n"), 0o600))
	return path
}

func runCLI(t *testing.T, cli *commandLine, out *bytes.Buffer, tt cliTest) {
	t.Helper()
	out.Reset()
	err := cli.run(context.Background(), append([]string{"mashovsend"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
	for _, s := range tt.wantOut {
		assert.Contains(t, out.String(), s)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: []string{"Usage:"}},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "export without out", args: []string{"export"}, wantErr: errHelp},
		{name: "help flag", args: []string{"send", "-h"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"send", "-lol"}, wantErrStr: "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, out, tt)
		})
	}
}

func Test_commandLine_login(t *testing.T) {
	cli, p, out, _ := setup(t)

	tests := []cliTest{
		{name: "ok", args: []string{"login"}, wantOut: []string{"Logged in as: " + testutil.DisplayName}},
		{name: "wrong year", args: []string{"login", "-year", "2020"}, wantErrStr: "login failed"},
		{name: "invalid year", args: []string{"login", "-year", "20"}, wantErrStr: "invalid credentials"},
		{name: "missing semel", args: []string{"login", "-semel", ""}, wantErrStr: "semel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, out, tt)
		})
	}
	assert.Equal(t, 1, p.Logins())
}

func Test_commandLine_passwordPrompt(t *testing.T) {
	cli, _, out, _ := setup(t)
	cli.conf.Portal.Password = ""
	defer func(f func(int) ([]byte, error)) { readPasswordFunc = f }(readPasswordFunc)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "empty password", args: []string{"login"}, wantErrStr: "password"},
		{name: "wrong password", args: []string{"login"}, extra: extra{pwd: "lol"}, wantErrStr: "login failed"},
		{name: "prompted password", args: []string{"login"}, extra: extra{pwd: testutil.Password}, wantOut: []string{"Enter password:", "Logged in as"}},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, out, tt)
		})
	}
}

func Test_commandLine_send(t *testing.T) {
	cli, p, out, store := setup(t)
	csvPath := writeCSV(t,
		"12345678.0,דנה,לוי,dana,,Ab12cd",
		"2,נועה,כהן,noa,,x1",
		"3,רון,גל,ron,,x2",
	)
	failedOut := filepath.Join(t.TempDir(), "errors.csv")

	runCLI(t, cli, out, cliTest{
		args:    []string{"send", "-csv", csvPath, "-dry-run", "-failed-out", failedOut},
		wantOut: []string{"[DRY RUN]", "[SKIP] no match for רון גל (3)", "success=2, failed=1"},
	})
	assert.Empty(t, p.Sent())

	runCLI(t, cli, out, cliTest{
		args:    []string{"send", "-csv", csvPath, "-limit", "2", "-send-email", "-subject", "שלום {first}", "-failed-out", failedOut},
		wantOut: []string{"[OK] sent to דנה לוי (12345678.0) (g-1)", "success=2, failed=0"},
	})
	sent := p.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "שלום דנה", sent[0].Subject)
	assert.Equal(t, "true", sent[0].SendViaEmail)

	failed, err := os.ReadFile(failedOut)
	require.NoError(t, err)
	assert.Equal(t, csvHeader+"3,רון,גל,ron,,x2\n", string(failed))

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func Test_commandLine_sendErrors(t *testing.T) {
	cli, p, out, _ := setup(t)
	csvPath := writeCSV(t, "1,a,b,u,,p")

	tests := []cliTest{
		{name: "bad template", args: []string{"send", "-csv", csvPath, "-template", "{first"}, wantErrStr: "unclosed placeholder"},
		{name: "missing file", args: []string{"send", "-csv", "nope.csv"}, wantErrStr: "nope.csv"},
		{name: "missing id column", args: []string{"send", "-csv", csvPath, "-id-col", "tz"}, wantErrStr: "missing identifier column"},
		{name: "bad notify address", args: []string{"send", "-csv", csvPath, "-notify", "not an address"}, wantErrStr: "-notify"},
		{name: "login failure", args: []string{"send", "-csv", csvPath, "-username", "nobody"}, wantErrStr: "login failed, cannot continue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, out, tt)
		})
	}
	assert.Empty(t, p.Lookups())
}

func Test_commandLine_sendNotify(t *testing.T) {
	cli, _, out, _ := setup(t)
	csvPath := writeCSV(t, "12345678,דנה,לוי,dana,,Ab12cd", "9,x,y,z,,w")

	runCLI(t, cli, out, cliTest{
		args:    []string{"send", "-csv", csvPath, "-notify", "op@school.example", "-failed-out", filepath.Join(t.TempDir(), "e.csv")},
		wantOut: []string{"To: <op@school.example>", "failed_rows.csv", "1 succeeded, 1 failed"},
	})
}

func Test_commandLine_export(t *testing.T) {
	cli, p, out, _ := setup(t)
	csvPath := writeCSV(t, "12345678.0,דנה,לוי,dana,,Ab12cd")
	outPath := filepath.Join(t.TempDir(), "out.csv")

	runCLI(t, cli, out, cliTest{
		args:    []string{"export", "-csv", csvPath, "-out", outPath, "-subject", "hi {first}", "-template", "{password}"},
		wantOut: []string{"Wrote 1 rows to " + outPath},
	})
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "student_display_name,student_id,subject,body\nדנה לוי,012345678,hi דנה,Ab12cd\n", string(data))
	assert.Zero(t, p.Logins())
}

func Test_commandLine_recipients(t *testing.T) {
	cli, p, out, _ := setup(t)
	p.SetRecipients([]map[string]interface{}{{"displayName": "כיתה ט"}, {"displayName": "כיתה י"}})

	runCLI(t, cli, out, cliTest{args: []string{"recipients"}, wantOut: []string{"2 recipients"}})
	runCLI(t, cli, out, cliTest{args: []string{"recipients", "-list"}, wantOut: []string{`{"displayName":"כיתה ט"}`}})
}

func Test_commandLine_history(t *testing.T) {
	cli, _, out, store := setup(t)
	csvPath := writeCSV(t, "12345678,דנה,לוי,dana,,Ab12cd")

	runCLI(t, cli, out, cliTest{args: []string{"send", "-csv", csvPath, "-dry-run", "-failed-out", ""}})
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runCLI(t, cli, out, cliTest{args: []string{"history"}, wantOut: []string{runs[0].ID, "finished (dry run)"}})
	runCLI(t, cli, out, cliTest{args: []string{"history", "-run", runs[0].ID}, wantOut: []string{"012345678", "dry_run"}})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out, _ := setup(t)

	runCLI(t, cli, out, cliTest{args: []string{"migrate", "up"}, wantErrStr: "no database configured"})

	cli.conf.Database = core.DatabaseConfig{Engine: "sqlite", Path: filepath.Join(t.TempDir(), "journal.db")}
	tests := []cliTest{
		{name: "up", args: []string{"migrate", "up"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "up"}},
		{name: "unknown", args: []string{"migrate", "lol"}, wantErrStr: "lol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, out, tt)
		})
	}
}
