package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

const (
	textExt = ".txt"
	htmlExt = ".gohtml"
)

// emailTemplate is a named pair of bodies, each parsed on top of its `_base` layout.
// Either may be nil.
type emailTemplate struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

// emailTemplates is filled by ParseEmailTemplates and read on every Render.
var emailTemplates = struct {
	sync.RWMutex
	byName           map[string]emailTemplate
	appName, baseURL string
}{byName: map[string]emailTemplate{}}

type (
	Attachment struct {
		Content     *bytes.Buffer // base64
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text, bypasses the templates
		Attachments []Attachment

		TemplateName string // without extension
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is the dot of every email template.
	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	EmailService interface {
		// SendMessages sends messages concurrently, errors are logged
		SendMessages(messages ...*EmailMessage)
		// SendMessage sends a single message synchronously
		SendMessage(message *EmailMessage) error
	}
)

// Render fills TextContent and HTMLContent. BodyStr wins over the text template;
// an unknown template leaves the contents empty.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	emailTemplates.RLock()
	tmpl, ok := emailTemplates.byName[m.TemplateName]
	data := ContextData{
		AppName:         emailTemplates.appName,
		FrontendBaseURL: emailTemplates.baseURL,
		Data:            m.TemplateData,
	}
	emailTemplates.RUnlock()
	if !ok {
		return nil
	}

	var buf bytes.Buffer
	if tmpl.text != nil && m.BodyStr == "" {
		if err := tmpl.text.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "rendering %s%s", m.TemplateName, textExt)
		}
		m.TextContent = buf.String()
		buf.Reset()
	}
	if tmpl.html != nil {
		if err := tmpl.html.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "rendering %s%s", m.TemplateName, htmlExt)
		}
		m.HTMLContent = buf.String()
	}
	return nil
}

// Attach base64-encodes the content of r. The content type is sniffed unless given.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading attachment")
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}
	if len(ct) > 0 && ct[0] != "" {
		at.ContentType = ct[0]
	} else {
		at.ContentType = mimetype.Detect(content).String()
	}

	enc := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err = enc.Write(content); err != nil {
		return err
	}
	if err = enc.Close(); err != nil {
		return err
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) AttachFile(path string, contentType ...string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return m.Attach(f, filepath.Base(path), contentType...)
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return m.TextContent != "" || m.HTMLContent != "" }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates (re)loads `<WorkDir>/assets/templates/email`. Files starting with `_` are layouts.
// A template that fails to parse is logged and skipped.
func ParseEmailTemplates(conf *Config, logger Logger) {
	dir := filepath.Join(conf.WorkDir, "assets", "templates", "email")
	strict := conf.Debug || conf.TestMode
	parsed := make(map[string]emailTemplate)

	for _, ext := range []string{textExt, htmlExt} {
		paths, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			logger.Error(fmt.Sprintf("listing email templates: %v", err), err)
			return
		}
		base := filepath.Join(dir, "_base"+ext)

		for _, path := range paths {
			fname := filepath.Base(path)
			if strings.HasPrefix(fname, "_") {
				continue
			}
			name := strings.TrimSuffix(fname, ext)
			tmpl := parsed[name]

			if ext == textExt {
				t, err := texttmpl.ParseFiles(base, path)
				if err != nil {
					logger.Error(fmt.Sprintf("parsing email template %s: %v", fname, err), err)
					continue
				}
				if strict {
					t = t.Option("missingkey=error")
				}
				tmpl.text = t
			} else {
				t, err := htmltmpl.ParseFiles(base, path)
				if err != nil {
					logger.Error(fmt.Sprintf("parsing email template %s: %v", fname, err), err)
					continue
				}
				if strict {
					t = t.Option("missingkey=error")
				}
				tmpl.html = t
			}
			parsed[name] = tmpl
		}
	}

	emailTemplates.Lock()
	emailTemplates.byName = parsed
	emailTemplates.appName = conf.AppName
	emailTemplates.baseURL = conf.FrontendBaseURL
	emailTemplates.Unlock()
}
