package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wneessen/go-mail"

	"github.com/jpalmerr/stockpulse/internal/alert"
	"github.com/jpalmerr/stockpulse/internal/settings"
)

const (
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 15 * time.Second
)

// DefaultEmailTemplate renders the HTML part of restock emails.
const DefaultEmailTemplate = `<h2>{{.Name}} is back in stock</h2>
<p>Previously: {{.Previous}}</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p><small>Checked at {{.At}}</small></p>`

// TLS policies understood by [SMTPConfig].
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// TLS is one of TLSMandatory, TLSOpportunistic (default) or TLSNone.
	TLS string

	// Template overrides [DefaultEmailTemplate]. The rendered output is
	// sanitized before it is sent.
	Template string
}

// Configured reports whether enough is set to send mail.
func (c SMTPConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

// emailView is the data handed to the email template.
type emailView struct {
	Name     string
	URL      string
	Previous string
	At       string
}

// EmailNotifier sends restock alerts by SMTP to the address held in the
// user settings.
type EmailNotifier struct {
	cfg      SMTPConfig
	settings *settings.Holder
	tmpl     *template.Template
	policy   *bluemonday.Policy

	// send delivers a composed message; replaced in tests
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailNotifier creates an [EmailNotifier].
func NewEmailNotifier(cfg SMTPConfig, holder *settings.Holder) (*EmailNotifier, error) {
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}
	text := cfg.Template
	if strings.TrimSpace(text) == "" {
		text = DefaultEmailTemplate
	}
	tmpl, err := template.New("email").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}

	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	n := &EmailNotifier{
		cfg:      cfg,
		settings: holder,
		tmpl:     tmpl,
		policy:   policy,
	}
	n.send = n.dialAndSend
	return n, nil
}

// Name implements [alert.Notifier].
func (n *EmailNotifier) Name() string { return "email" }

// Enabled reports whether email alerts are switched on in the settings and
// an SMTP server is configured.
func (n *EmailNotifier) Enabled() bool {
	if !n.cfg.Configured() || n.settings == nil {
		return false
	}
	s := n.settings.Get()
	return s.EmailAlerts && strings.TrimSpace(s.EmailAddress) != ""
}

// Notify implements [alert.Notifier].
func (n *EmailNotifier) Notify(ctx context.Context, a alert.Alert) error {
	to := n.settings.Get().EmailAddress
	msg, err := n.compose(to, a)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// compose builds the message with a plain text body and a sanitized HTML
// alternative.
func (n *EmailNotifier) compose(to string, a alert.Alert) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", n.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(a.Subject())
	msg.SetBodyString(mail.TypeTextPlain, plainBody(a))

	html, err := n.renderHTML(a)
	if err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html)
	return msg, nil
}

func (n *EmailNotifier) renderHTML(a alert.Alert) (string, error) {
	var buf bytes.Buffer
	err := n.tmpl.Execute(&buf, emailView{
		Name:     a.Name,
		URL:      a.URL,
		Previous: a.Previous.Label(),
		At:       a.At.Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return n.policy.Sanitize(buf.String()), nil
}

func plainBody(a alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is back in stock.\n\n", a.Name)
	fmt.Fprintf(&b, "Previously: %s\n", a.Previous.Label())
	fmt.Fprintf(&b, "Link: %s\n", a.URL)
	if a.Test {
		b.WriteString("\nThis is a test alert.\n")
	}
	return b.String()
}

func (n *EmailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(defaultSMTPTimeout),
		mail.WithTLSPolicy(tlsPolicy(n.cfg.TLS)),
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
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TLSMandatory:
		return mail.TLSMandatory
	case TLSNone:
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
