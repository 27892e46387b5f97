package gateways

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// EmailGateway sends mail through a configured SMTP relay. No third-party
// mail client is wired in; the ambient stack carries zap/pgx/redis/amqp/jwt
// plus the dependencies newly exercised elsewhere (cron, ulid, validator,
// x/time), and SMTP needs nothing beyond what net/smtp already gives a
// single relay connection per send.
type EmailGateway struct {
	host     string
	port     string
	username string
	password string
	from     string
	useTLS   bool
	logger   *zap.Logger
}

func NewEmailGateway(host, port, username, password, from string, useTLS bool, logger *zap.Logger) *EmailGateway {
	return &EmailGateway{host: host, port: port, username: username, password: password, from: from, useTLS: useTLS, logger: logger}
}

// Send implements the function shape providers.NewEmailAdapter expects.
// ctx is accepted for signature symmetry with the other gateways; net/smtp
// has no context-aware send path, so a slow relay is only bounded by the
// underlying TCP connection's own timeouts.
func (g *EmailGateway) Send(ctx context.Context, to, subject, html, text string, tracking bool) (string, error) {
	addr := g.host + ":" + g.port
	auth := smtp.PlainAuth("", g.username, g.password, g.host)

	msg := buildMIMEMessage(g.from, to, subject, html, text)

	var err error
	if g.useTLS {
		err = sendTLS(addr, g.host, auth, g.from, to, msg)
	} else {
		err = smtp.SendMail(addr, auth, g.from, []string{to}, msg)
	}
	if err != nil {
		return "", fmt.Errorf("email gateway: send: %w", err)
	}

	return "", nil // SMTP has no provider message id to report
}

func sendTLS(addr, host string, auth smtp.Auth, from, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("dial tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return w.Close()
}

func buildMIMEMessage(from, to, subject, html, text string) []byte {
	boundary := "notifyengine-boundary"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(html)
	fmt.Fprintf(&b, "\r\n\r\n--%s--\r\n", boundary)

	return []byte(b.String())
}
