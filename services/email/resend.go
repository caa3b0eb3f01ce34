package emailsvc

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	"github.com/trezcool/mashovsend/core"
)

type resendService struct {
	client     *resend.Client
	from       string
	subjPrefix string
}

var _ core.EmailService = (*resendService)(nil)

func NewResendService(conf *core.Config) core.EmailService {
	from := conf.DefaultFromEmail()
	return &resendService{
		client:     resend.NewClient(conf.Email.ResendApiKey),
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (svc resendService) SendMessages(ctx context.Context, messages ...*core.EmailMessage) error {
	for _, msg := range messages {
		if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
			continue
		}
		if _, err := svc.client.Emails.SendWithContext(ctx, svc.prepare(*msg)); err != nil {
			return errors.Wrap(err, "resend: sending email")
		}
	}
	return nil
}

func (svc resendService) prepare(msg core.EmailMessage) *resend.SendEmailRequest {
	params := &resend.SendEmailRequest{
		From:    svc.from,
		To:      addresses(msg.To),
		Cc:      addresses(msg.Cc),
		Bcc:     addresses(msg.Bcc),
		Subject: svc.subjPrefix + msg.Subject,
		Text:    msg.TextContent,
		Html:    msg.HTMLContent,
	}
	for _, at := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:  at.Content,
			Filename: at.Filename,
		})
	}
	return params
}

func addresses(addrs []mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
