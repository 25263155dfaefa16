package notifications

// go generate: mockery --name Notifier

import (
	"os"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	templates "github.com/classkeep/license-api/templates/html"
)

// Template kinds accepted by Notify
const (
	TemplateLicenseSuspended = "license_suspended"
	TemplateLicenseRestored  = "license_restored"
	TemplateGraceWarning     = "grace_warning"
	TemplateLicenseWelcome   = "license_welcome"
)

// Context carries the values interpolated into a notification template
type Context struct {
	RecipientName string
	LicenseCode   string
	Reason        string
	GraceDays     int
}

// Notifier delivers outbound license notifications. Delivery is
// fire-and-forget: failures are logged by the caller and never propagate
// into a license state transition.
type Notifier interface {
	Notify(recipientEmail, templateKind string, nctx Context) error
}

// SendGridNotifier sends notifications through sendgrid
type SendGridNotifier struct {
	FromName  string
	FromEmail string
}

// NewSendGridNotifier returns a notifier using the platform sender identity
func NewSendGridNotifier() *SendGridNotifier {
	return &SendGridNotifier{
		FromName:  "ClassKeep",
		FromEmail: "no-reply@classkeep.app",
	}
}

// Notify renders the template and sends a single email
func (n *SendGridNotifier) Notify(recipientEmail, templateKind string, nctx Context) error {
	subject, htmlContent, plainText := render(templateKind, nctx)

	from := mail.NewEmail(n.FromName, n.FromEmail)
	to := mail.NewEmail(nctx.RecipientName, recipientEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
	return nil
}

func render(templateKind string, nctx Context) (subject, htmlContent, plainText string) {
	switch templateKind {
	case TemplateLicenseSuspended:
		subject = "Your ClassKeep access has been paused"
		htmlContent = templates.RenderLicenseSuspendedEmail(nctx.RecipientName, nctx.LicenseCode, nctx.Reason)
		plainText = "Access linked to your license " + nctx.LicenseCode + " has been paused. Reason: " + nctx.Reason
	case TemplateLicenseRestored:
		subject = "Your ClassKeep access has been restored"
		htmlContent = templates.RenderLicenseRestoredEmail(nctx.RecipientName, nctx.LicenseCode)
		plainText = "Access linked to your license " + nctx.LicenseCode + " has been restored. Welcome back!"
	case TemplateGraceWarning:
		subject = "Action required: payment issue on your ClassKeep subscription"
		htmlContent = templates.RenderGraceWarningEmail(nctx.RecipientName, nctx.LicenseCode, nctx.GraceDays)
		plainText = "We could not process your latest payment. You have a grace window to update your payment details before access is paused."
	default:
		subject = "Welcome to ClassKeep"
		htmlContent = templates.RenderLicenseWelcomeEmail(nctx.RecipientName, nctx.LicenseCode)
		plainText = "Your license " + nctx.LicenseCode + " is ready. Share its seat codes with your family or school to get started."
	}
	return subject, htmlContent, plainText
}
