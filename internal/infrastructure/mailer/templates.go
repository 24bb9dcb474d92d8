package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"newsletter.backend/internal/domain/entities"
)

//go:embed templates/*.html
var templateFS embed.FS

type message struct {
	subject  string
	template string
	links    []string
}

var messages = map[string]message{
	key(entities.NotificationVerification, ""): {
		subject:  "Verify your email to receive updates",
		template: "verification.html",
		links:    []string{entities.LinkVerifyEmail},
	},
	key(entities.NotificationWelcome, ""): {
		subject:  "Welcome to the community",
		template: "welcome.html",
		links:    []string{entities.LinkCompleteAccount, entities.LinkPreferences},
	},
	key(entities.NotificationRegenerated, entities.OriginVerifyEmail): {
		subject:  "Here's your new email verification link",
		template: "regenerated_verify_email.html",
		links:    []string{entities.LinkVerifyEmail},
	},
	key(entities.NotificationRegenerated, entities.OriginCompleteAccount): {
		subject:  "Here's your new account completion link",
		template: "regenerated_complete_account.html",
		links:    []string{entities.LinkCompleteAccount},
	},
}

func key(kind entities.NotificationKind, origin entities.FlowOrigin) string {
	if kind != entities.NotificationRegenerated {
		origin = ""
	}
	return string(kind) + "/" + string(origin)
}

// Renderer turns notifications into subject and HTML body.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render returns the subject and HTML body for n.
func (r *Renderer) Render(n entities.Notification) (string, string, error) {
	msg, ok := messages[key(n.Kind, n.Origin)]
	if !ok {
		return "", "", fmt.Errorf("no template for %s notification (origin %q)", n.Kind, n.Origin)
	}

	for _, name := range msg.links {
		if n.Links[name] == "" {
			return "", "", fmt.Errorf("%s notification is missing the %s link", n.Kind, name)
		}
	}

	var buf bytes.Buffer
	data := struct {
		Email string
		Links map[string]string
	}{Email: n.Email, Links: n.Links}
	if err := r.templates.ExecuteTemplate(&buf, msg.template, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", msg.template, err)
	}
	return msg.subject, buf.String(), nil
}
