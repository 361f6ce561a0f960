package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendGridSink struct {
	key        string
	from       *sgmail.Email
	recipients RecipientResolver
	api        func(req rest.Request) (*rest.Response, error)
}

// NewSendGridSink returns nil without an API key or sender address.
func NewSendGridSink(apiKey, fromName, fromEmail string, recipients RecipientResolver) *SendGridSink {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(fromEmail) == "" || recipients == nil {
		return nil
	}
	return &SendGridSink{
		key:        strings.TrimSpace(apiKey),
		from:       sgmail.NewEmail(fromName, strings.TrimSpace(fromEmail)),
		recipients: recipients,
		api:        sendgrid.API,
	}
}

func (s *SendGridSink) NotifyGraded(ctx context.Context, ev GradedEvent) error {
	to, err := s.recipients.StudentEmail(ctx, ev.StudentID)
	if err != nil {
		return fmt.Errorf("resolve student email: %w", err)
	}

	m := sgmail.NewSingleEmail(s.from, gradedSubject(ev), sgmail.NewEmail("", to), gradedBody(ev), gradedHTML(ev))
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := s.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid send graded notification: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send graded notification: status %d", res.StatusCode)
	}
	return nil
}

func gradedHTML(ev GradedEvent) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(gradedBody(ev)), "\n", "<br>") + "</p>"
}
