// Package notify delivers account messages (welcome and password reset)
// either over SMTP or to the structured log.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is a rendered plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(
		"You have been successfully registered as {{.Email}}.\r\n"))
	resetTemplate = template.Must(template.New("reset").Parse(
		"Your reset token: {{.Token}}\r\n\r\n" +
			"Use it together with your email address to choose a new password.\r\n" +
			"If you did not ask for a reset, you can ignore this message.\r\n"))
)

// WelcomeMessage renders the registration confirmation for email
func WelcomeMessage(email string) (Message, error) {
	body, err := render(welcomeTemplate, map[string]string{"Email": email})
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: "Welcome!", Body: body}, nil
}

// ResetTokenMessage renders the password reset message carrying resetToken
func ResetTokenMessage(email, resetToken string) (Message, error) {
	body, err := render(resetTemplate, map[string]string{"Token": resetToken})
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: "Password reset", Body: body}, nil
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// SMTPConfig holds outbound mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier sends account messages through an SMTP relay
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *mail.Msg) error
	now  func() time.Time
}

// NewSMTPNotifier creates a notifier that relays through cfg.Host
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	n := &SMTPNotifier{cfg: cfg, now: time.Now}
	n.send = n.deliver
	return n
}

// SendWelcome mails the registration confirmation
func (n *SMTPNotifier) SendWelcome(ctx context.Context, email string) error {
	msg, err := WelcomeMessage(email)
	if err != nil {
		return err
	}
	return n.Send(ctx, msg)
}

// SendResetToken mails a password reset token
func (n *SMTPNotifier) SendResetToken(ctx context.Context, email, resetToken string) error {
	msg, err := ResetTokenMessage(email, resetToken)
	if err != nil {
		return err
	}
	return n.Send(ctx, msg)
}

// Send delivers an already rendered message
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.compose(msg)
	if err != nil {
		return err
	}
	return n.send(ctx, m)
}

// compose builds the MIME message; addresses are parsed per RFC 5322
func (n *SMTPNotifier) compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(n.now())
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// deliver runs one SMTP session, upgrading to TLS when the relay offers it
func (n *SMTPNotifier) deliver(ctx context.Context, msg *mail.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp %s: %w", n.cfg.Host, err)
	}
	return nil
}
