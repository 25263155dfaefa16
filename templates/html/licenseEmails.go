package templates

import (
	"fmt"
	"html"
	"strings"
)

// RenderGenericEmail generates branded HTML for a generic email.
// The subject is displayed in the header banner, and bodyContent is plain text
// that gets HTML-escaped and has newlines converted to <br> tags.
func RenderGenericEmail(subject, bodyContent string) string {
	// HTML-escape the body to prevent injection, then convert newlines to <br>
	escaped := html.EscapeString(bodyContent)
	htmlBody := strings.ReplaceAll(escaped, "\n", "<br>")

	// HTML-escape the subject for safe display in the header
	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f4f6fb; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background: linear-gradient(135deg, #2563eb 0%%, #7c3aed 100%%); padding: 40px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 24px; font-weight: 700; }
    .content { padding: 40px 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .footer { padding: 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
    .footer a { color: #2563eb; text-decoration: none; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>&copy; ClassKeep | <a href="https://www.classkeep.app">classkeep.app</a></p>
      <p><a href="https://www.classkeep.app/support">Contact Support</a></p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, htmlBody)
}

// RenderLicenseSuspendedEmail generates the HTML sent to a license owner when
// access tied to their license is paused
func RenderLicenseSuspendedEmail(ownerName, licenseCode, reason string) string {
	body := fmt.Sprintf(`Hi %s,

Access for everyone covered by your license %s has been paused.

Reason: %s

To restore access for your family or school, renew your subscription from your account dashboard. Access is restored automatically as soon as the renewal goes through.`,
		ownerName, licenseCode, humanReason(reason))
	return RenderGenericEmail("Access Paused", body)
}

// RenderLicenseRestoredEmail generates the HTML sent to a license owner when
// access tied to their license comes back
func RenderLicenseRestoredEmail(ownerName, licenseCode string) string {
	body := fmt.Sprintf(`Hi %s,

Good news: your license %s is active again and access has been restored for everyone it covers.

No further action is needed.`, ownerName, licenseCode)
	return RenderGenericEmail("Access Restored", body)
}

// RenderGraceWarningEmail generates the HTML sent to a license owner when a
// payment fails and a grace window starts
func RenderGraceWarningEmail(ownerName, licenseCode string, graceDays int) string {
	body := fmt.Sprintf(`Hi %s,

We couldn't process the latest payment for your license %s.

Your family or school keeps full access for the next %d days while you update your payment details. If the payment still can't be processed after that, access will be paused until the subscription is renewed.`,
		ownerName, licenseCode, graceDays)
	return RenderGenericEmail("Payment Issue", body)
}

// RenderLicenseWelcomeEmail generates the HTML sent to a purchaser when their
// license is issued
func RenderLicenseWelcomeEmail(ownerName, licenseCode string) string {
	body := fmt.Sprintf(`Hi %s,

Your license %s is ready.

Share its seat codes with your guardians or students; each code can be redeemed exactly once. You can track redemptions from your dashboard.`, ownerName, licenseCode)
	return RenderGenericEmail("Welcome to ClassKeep", body)
}

func humanReason(reason string) string {
	switch reason {
	case "family_license_expired":
		return "your family license has expired"
	case "school_license_expired":
		return "your school license has expired"
	case "payment_failed_grace_period":
		return "a payment failed and the grace period has ended"
	case "subscription_cancelled":
		return "your subscription was cancelled"
	default:
		return strings.ReplaceAll(reason, "_", " ")
	}
}
