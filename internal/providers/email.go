package providers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"notifyengine/internal/model"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// emailTemplate is a pre-registered template for one event-kind family. Body
// fragments use {{title}}/{{body}} as the only substitution points — this is
// intentionally not a full template engine, just enough to keep transfer and
// security mail visually distinct from the generic fallback.
type emailTemplate struct {
	subjectPrefix string
	htmlWrapper   string
	textWrapper   string
}

var emailTemplates = map[string]emailTemplate{
	"transfers": {
		subjectPrefix: "[Account Activity] ",
		htmlWrapper:   `<div style="font-family:sans-serif"><h2>{{title}}</h2><p>{{body}}</p></div>`,
		textWrapper:   "{{title}}\n\n{{body}}",
	},
	"security": {
		subjectPrefix: "[Security Alert] ",
		htmlWrapper:   `<div style="font-family:sans-serif;border-left:4px solid #c00;padding-left:12px"><h2>{{title}}</h2><p>{{body}}</p></div>`,
		textWrapper:   "SECURITY ALERT: {{title}}\n\n{{body}}",
	},
	"digest": {
		subjectPrefix: "",
		htmlWrapper:   `<div style="font-family:sans-serif">{{body}}</div>`,
		textWrapper:   "{{body}}",
	},
}

// kindFamily maps an event kind to the template family it belongs to. Kinds
// absent from this table fall back to inline HTML+text bodies with no
// template wrapping.
var kindFamily = map[string]string{
	"transfer_completed":      "transfers",
	"transfer_failed":         "transfers",
	"large_withdrawal":        "transfers",
	"login_failed":            "security",
	"login_new_device":        "security",
	"password_changed":        "security",
	"fraud_detected":          "security",
	"account_locked":          "security",
	"account_unlocked":        "security",
	"digest_summary":          "digest",
}

// EmailAdapter sends templated or inline email through a transactional
// email provider, injected as send so tests avoid a network dependency.
// Every outbound message carries a click/open tracking pixel and link
// wrapping handled by the provider itself (trackingEnabled toggles it).
type EmailAdapter struct {
	logger          *zap.Logger
	enabled         bool
	trackingEnabled bool
	send            func(ctx context.Context, to, subject, html, text string, tracking bool) (string, error)
}

func NewEmailAdapter(enabled, trackingEnabled bool, logger *zap.Logger, send func(ctx context.Context, to, subject, html, text string, tracking bool) (string, error)) *EmailAdapter {
	return &EmailAdapter{logger: logger, enabled: enabled, trackingEnabled: trackingEnabled, send: send}
}

func (a *EmailAdapter) Channel() model.Channel { return model.ChannelEmail }

// Compose renders the subject/HTML/text bodies for kind, preferring a
// registered template for the kind's family and falling back to a plain
// inline rendering when no family is registered.
func Compose(kind, title, body string) (subject, html, text string) {
	family, ok := kindFamily[kind]
	if !ok {
		return title, fmt.Sprintf("<p>%s</p>", body), body
	}

	tmpl := emailTemplates[family]
	render := func(wrapper string) string {
		out := strings.ReplaceAll(wrapper, "{{title}}", title)
		out = strings.ReplaceAll(out, "{{body}}", body)
		return out
	}
	return tmpl.subjectPrefix + title, render(tmpl.htmlWrapper), render(tmpl.textWrapper)
}

func (a *EmailAdapter) Send(ctx context.Context, in SendInput) Outcome {
	if !a.enabled {
		return Outcome{Status: model.StatusFailed, Error: "channel not enabled"}
	}

	if !emailPattern.MatchString(in.Email) {
		return Outcome{Status: model.StatusFailed, Error: "email address is not valid"}
	}

	subject, html, text := Compose(in.Kind, in.Title, in.Body)

	msgID, err := a.send(ctx, in.Email, subject, html, text, a.trackingEnabled)
	if err != nil {
		a.logger.Warn("email send failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("email provider: %v", err)}
	}

	return Outcome{Status: model.StatusSent, ProviderMsgID: msgID}
}
