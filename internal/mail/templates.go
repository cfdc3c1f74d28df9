package mail

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Templates renders the account email bodies. Links point at the
// frontend, which exchanges the embedded token against the API.
type Templates struct {
	projectName  string
	frontendHost string
	resetTTL     time.Duration
}

func NewTemplates(projectName, frontendHost string, resetTTL time.Duration) *Templates {
	return &Templates{
		projectName:  projectName,
		frontendHost: strings.TrimSuffix(frontendHost, "/"),
		resetTTL:     resetTTL,
	}
}

var recoveryTmpl = template.Must(template.New("recovery").Parse(
	`Hello,

A password reset was requested for your {{.Project}} account ({{.Email}}).

Open the link below to choose a new password. The link is valid for {{.Hours}} hours:

{{.Link}}

If you did not request this, you can ignore this message.
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(
	`Welcome to {{.Project}}!

An account was created for {{.Email}}.
{{if .Password}}
Your temporary password is: {{.Password}}

Please sign in and change it right away.
{{end}}
Sign in at {{.Link}}
`))

var verifyTmpl = template.Must(template.New("verify").Parse(
	`Hello,

Confirm the email address for your {{.Project}} account by opening:

{{.Link}}

If you did not create this account, you can ignore this message.
`))

func (t *Templates) render(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}

// PasswordRecovery builds the reset message for email with the given
// reset token.
func (t *Templates) PasswordRecovery(email, token string) (Message, error) {
	body, err := t.render(recoveryTmpl, map[string]any{
		"Project": t.projectName,
		"Email":   email,
		"Hours":   int(t.resetTTL.Hours()),
		"Link":    fmt.Sprintf("%s/reset-password?token=%s", t.frontendHost, token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s - Password recovery for %s", t.projectName, email),
		Body:    body,
	}, nil
}

// AccountCreated builds the welcome message. password may be empty for
// self-registered accounts.
func (t *Templates) AccountCreated(email, password string) (Message, error) {
	body, err := t.render(welcomeTmpl, map[string]any{
		"Project":  t.projectName,
		"Email":    email,
		"Password": password,
		"Link":     t.frontendHost,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s - New account for %s", t.projectName, email),
		Body:    body,
	}, nil
}

// EmailVerification builds the address-confirmation message.
func (t *Templates) EmailVerification(email, token string) (Message, error) {
	body, err := t.render(verifyTmpl, map[string]any{
		"Project": t.projectName,
		"Link":    fmt.Sprintf("%s/verify-email?token=%s", t.frontendHost, token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s - Verify your email", t.projectName),
		Body:    body,
	}, nil
}
