// Package emailsvc delivers operator notifications.
package emailsvc

import (
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
)

// New returns the email service selected by conf.Email.Provider. Console output goes to out.
func New(conf *core.Config, out io.Writer) (core.EmailService, error) {
	switch conf.Email.Provider {
	case "", "console":
		return NewConsoleService(conf, out), nil
	case "sendgrid":
		if conf.Email.SendgridApiKey == "" {
			return nil, errors.New("emailsvc: sendgrid api key is not configured")
		}
		return NewSendgridService(conf), nil
	case "resend":
		if conf.Email.ResendApiKey == "" {
			return nil, errors.New("emailsvc: resend api key is not configured")
		}
		return NewResendService(conf), nil
	}
	return nil, errors.Errorf("emailsvc: unknown provider %q", conf.Email.Provider)
}
