package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderLicenseSuspendedEmail(t *testing.T) {
	out := RenderLicenseSuspendedEmail("Jordan", "FAM-ABCDEF123456", "subscription_cancelled")

	assert.Contains(t, out, "Hi Jordan")
	assert.Contains(t, out, "FAM-ABCDEF123456")
	assert.Contains(t, out, "your subscription was cancelled")
	assert.Contains(t, out, "Access Paused")
}

func TestRenderGraceWarningEmail(t *testing.T) {
	out := RenderGraceWarningEmail("Jordan", "FAM-ABCDEF123456", 7)

	assert.Contains(t, out, "next 7 days")
	assert.Contains(t, out, "Payment Issue")
}

func TestRenderLicenseRestoredEmail(t *testing.T) {
	out := RenderLicenseRestoredEmail("Jordan", "FAM-ABCDEF123456")

	assert.Contains(t, out, "active again")
}

func TestRenderLicenseWelcomeEmail(t *testing.T) {
	out := RenderLicenseWelcomeEmail("Jordan", "SCH-ABCDEF123456")

	assert.Contains(t, out, "SCH-ABCDEF123456")
	assert.Contains(t, out, "redeemed exactly once")
}

func TestRenderGenericEmailEscapesSubject(t *testing.T) {
	out := RenderGenericEmail(`<script>alert("x")</script>`, "body")

	assert.False(t, strings.Contains(out, "<script>"))
}
