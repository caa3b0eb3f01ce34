package echoapi

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/student"
	"github.com/trezcool/mashovsend/services/portal"
)

const csvFileField = "csv_file"

type portalApi struct {
	srv *server
	now func() time.Time
}

func registerPortalAPI(g *echo.Group, jwt echo.MiddlewareFunc, srv *server) {
	api := portalApi{srv: srv, now: time.Now}

	// un-authed endpoints
	g.GET("/years", api.years)
	g.POST("/login", api.login)

	// authed endpoints
	g.POST("/logout", api.logout, jwt)
	g.POST("/tables", api.previewTable, jwt)
}

type yearsResponse struct {
	Years   []string `json:"years"`
	Current string   `json:"current"`
}

type loginResponse struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

type tableResponse struct {
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// AcademicYears returns the last three academic years, most recent first.
// An academic year is named after the calendar year it ends in; it starts in July.
func AcademicYears(now time.Time) []string {
	end := now.Year()
	if now.Month() >= time.July {
		end++
	}
	years := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		years = append(years, strconv.Itoa(end-i))
	}
	return years
}

func (api *portalApi) years(ctx echo.Context) error {
	years := AcademicYears(api.now())
	return ctx.JSON(http.StatusOK, yearsResponse{Years: years, Current: years[0]})
}

func (api *portalApi) login(ctx echo.Context) error {
	creds := new(portal.Credentials)
	if err := ctx.Bind(creds); err != nil {
		return err
	}
	if strings.TrimSpace(creds.Semel) == "" {
		creds.Semel = api.srv.deps.Conf.Portal.Semel
	}
	if err := creds.Validate(api.srv.deps.Validate, api.srv.deps.Translator); err != nil {
		return err
	}

	client, err := api.srv.newPortalClient(*creds)
	if err != nil {
		return err
	}
	acc, err := client.Login(ctx.Request().Context())
	api.srv.deps.Metrics.login(err)
	if err != nil {
		return err
	}

	token, err := api.srv.auth.issue(*creds, acc)
	if err != nil {
		return err
	}
	api.srv.deps.Logger.Info("operator logged in", core.Operator{Username: creds.Username, Semel: creds.Semel, Name: acc.DisplayName})
	return ctx.JSON(http.StatusOK, loginResponse{Token: token, DisplayName: acc.DisplayName})
}

func (api *portalApi) logout(ctx echo.Context) error {
	if err := api.srv.auth.revoke(ctx); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// previewTable parses the uploaded file and returns its header and row count, so columns can be mapped.
func (api *portalApi) previewTable(ctx echo.Context) error {
	cols := bindColumns(ctx)
	tbl, err := readUploadedTable(ctx, cols)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tableResponse{Columns: tbl.Header, Rows: len(tbl.Records)})
}

func (s *server) newPortalClient(creds portal.Credentials) (*portal.Client, error) {
	conf := s.deps.Conf.Portal
	return portal.NewClient(creds,
		portal.WithBaseURL(conf.BaseURL),
		portal.WithTimeout(conf.Timeout),
		portal.WithUserAgent(conf.UserAgent),
		portal.WithLogger(s.deps.Logger),
	)
}

// bindColumns reads the column mapping form fields; unset ones take the default headers.
func bindColumns(ctx echo.Context) student.Columns {
	return student.Columns{
		ID:                 ctx.FormValue("id_col"),
		First:              ctx.FormValue("first_col"),
		Last:               ctx.FormValue("last_col"),
		Username:           ctx.FormValue("username_col"),
		UsernameWithDomain: ctx.FormValue("domain_col"),
		Password:           ctx.FormValue("password_col"),
	}.Merge(student.DefaultColumns)
}

func readUploadedTable(ctx echo.Context, cols student.Columns) (student.Table, error) {
	fh, err := ctx.FormFile(csvFileField)
	if err != nil {
		return student.Table{}, core.NewValidationError(nil, core.FieldError{Field: csvFileField, Error: "no file uploaded"})
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return student.Table{}, core.NewValidationError(nil, core.FieldError{Field: csvFileField, Error: "invalid file type, please upload a CSV file"})
	}

	f, err := fh.Open()
	if err != nil {
		return student.Table{}, errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()
	return student.ReadTable(f, cols)
}
