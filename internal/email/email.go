// Package email implements the site's outbound mail, the `email {
// sendgrid { apiKey fromEmail fromName } template "name" { subject ... }
// }` block, as a thin client over SendGrid's v3/mail/send REST endpoint:
// a Config, a Client built from it, and a Send that posts one JSON
// payload and checks the response status.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/render"
)

const (
	defaultBaseURL = "https://api.sendgrid.com/v3"
	defaultTimeout = 15 * time.Second
)

// Config holds SendGrid credentials resolved from the site's Value fields.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	BaseURL   string // optional, defaults to SendGrid's API
}

// Client sends transactional email through SendGrid.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	templates  map[string]*ast.EmailTemplate
}

// New builds a Client from the site's resolved Email config. A site with
// no `email` block has no Client; callers should treat a nil *ast.Email
// as "email sending unavailable".
func New(e *ast.Email) (*Client, error) {
	if e == nil || e.SendGrid == nil {
		return nil, fmt.Errorf("email: site has no sendgrid configuration")
	}
	apiKey, ok := e.SendGrid.APIKey.ResolveString()
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("email: sendgrid apiKey not resolvable")
	}
	fromEmail, _ := e.SendGrid.FromEmail.ResolveString()
	fromName, _ := e.SendGrid.FromName.ResolveString()

	templates := make(map[string]*ast.EmailTemplate, len(e.Templates))
	for _, t := range e.Templates {
		templates[t.Name] = t
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		cfg:        Config{APIKey: apiKey, FromEmail: fromEmail, FromName: fromName},
		templates:  templates,
	}, nil
}

// Message is one outbound email, addressed to a single recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Send posts Message to SendGrid's v3/mail/send endpoint.
func (c *Client) Send(ctx context.Context, msg Message) error {
	payload := sendRequest{
		Personalizations: []personalization{{To: []address{{Email: msg.To}}}},
		From:             address{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          msg.Subject,
	}
	if msg.Text != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		payload.Content = append(payload.Content, content{Type: "text/html", Value: msg.HTML})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("email: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email: unexpected status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// SendTemplate renders the named template against data (the subject is a
// mustache template too) and sends the result to "to".
func (c *Client) SendTemplate(ctx context.Context, name, to string, data map[string]any) error {
	tmpl, ok := c.templates[name]
	if !ok {
		return fmt.Errorf("email: template %q not found", name)
	}
	subject, err := render.Template(&ast.Template{Kind: ast.TemplateMustache, Content: tmpl.Subject}, data)
	if err != nil {
		return fmt.Errorf("email: rendering subject: %w", err)
	}
	body, err := render.Template(tmpl.Template, data)
	if err != nil {
		return fmt.Errorf("email: rendering body: %w", err)
	}
	return c.Send(ctx, Message{To: to, Subject: subject, HTML: body})
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
