// Package mail delivers authcore verification mails. SMTP renders the
// embedded HTML templates and sends them through an SMTP relay; Log
// writes the mail to a slog.Logger instead of sending it.
package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate is returned for a template name with no embedded file.
var ErrUnknownTemplate = errors.New("unknown mail template")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// AppName is appended to subjects and shown in the body.
	AppName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTP struct {
	cfg       SMTPConfig
	templates *template.Template
	send      sendFunc
}

var _ authcore.Mailer = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &SMTP{cfg: cfg, templates: tmpl, send: smtp.SendMail}, nil
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return tmpl, nil
}

// Send renders templateName with data and relays it to to.
func (s *SMTP) Send(ctx context.Context, to, templateName string, data authcore.MailData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := render(s.templates, templateName, s.cfg.AppName, data)
	if err != nil {
		return err
	}

	msg := buildMessage(s.cfg.From, to, subject(data.Subject, s.cfg.AppName), body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

type templateData struct {
	App     string
	Code    string
	Expires string
}

func render(tmpl *template.Template, name, app string, data authcore.MailData) (string, error) {
	t := tmpl.Lookup(name + ".html")
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	err := t.Execute(&buf, templateData{
		App:     app,
		Code:    data.Code,
		Expires: data.Expires.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func subject(base, app string) string {
	if app == "" {
		return base
	}
	return base + " for " + app
}

func buildMessage(from, to, subj, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subj) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// Log is a Mailer that logs each mail, code included. Use it only where
// mail cannot leave the process, such as local development and load tests.
type Log struct {
	log *slog.Logger
}

var _ authcore.Mailer = (*Log)(nil)

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(ctx context.Context, to, templateName string, data authcore.MailData) error {
	l.log.InfoContext(ctx, "mail",
		slog.String("to", to),
		slog.String("template", templateName),
		slog.String("subject", data.Subject),
		slog.String("code", data.Code),
		slog.Time("expires", data.Expires),
	)
	return nil
}
