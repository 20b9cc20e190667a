// Package mailer renders the portal's email templates and sends them over
// SMTP.
package mailer

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var catalogYAML []byte

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

type entry struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
}

type compiled struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
}

// Catalog holds the parsed templates by name.
type Catalog struct {
	templates map[string]compiled
}

// LoadCatalog parses the embedded template catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a YAML catalog of {subject, html} entries.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var entries map[string]entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse email catalog: %w", err)
	}
	c := &Catalog{templates: make(map[string]compiled, len(entries))}
	for name, e := range entries {
		st, err := texttemplate.New(name).Option("missingkey=zero").Parse(e.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		ht, err := htmltemplate.New(name).Option("missingkey=zero").Parse(e.HTML)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		c.templates[name] = compiled{subject: st, html: ht}
	}
	return c, nil
}

// Has reports whether the catalog defines name.
func (c *Catalog) Has(name string) bool {
	_, ok := c.templates[name]
	return ok
}

// Render produces the subject and HTML body of template name.
func (c *Catalog) Render(name string, data map[string]string) (string, string, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.html.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subj.String()), body.String(), nil
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTP returns a sender for the given relay.
func NewSMTP(host string, port int, user, pass, from string) *SMTP {
	d := mail.NewDialer(host, port, user, pass)
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &SMTP{dialer: d, from: from}
}

// Send delivers one message.
func (s *SMTP) Send(_ context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return fmt.Errorf("send %q: no recipient", subject)
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Log is a Sender for local runs without a relay; it only logs.
type Log struct {
	Logger *zap.Logger
}

// Send logs the message instead of sending it.
func (l Log) Send(_ context.Context, to []string, subject, _ string) error {
	l.Logger.Info("email not sent (no smtp relay configured)",
		zap.Strings("to", to),
		zap.String("subject", subject))
	return nil
}
