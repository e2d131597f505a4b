package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"net/http"
	"strings"
	"sync"
	texttemplate "text/template"
)

// Template names one of the game notification emails.
type Template string

const (
	NotifyPlayers         Template = "notifyPlayers"
	ChallengeNotification Template = "challengeNotification"
	ChallengeAccepted     Template = "challengeAccepted"
	ChallengeRejected     Template = "challengeRejected"
)

// Data is the context rendered into a template.
type Data struct {
	RecipientName string
	ActorName     string
	CompleterName string
	TaskName      string
	Description   string
	GameID        int64
	Link          string
}

type templateSet struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func mustTemplate(name, subject, text, html string) templateSet {
	return templateSet{
		subject: texttemplate.Must(texttemplate.New(name + "-subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + "-text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + "-html").Parse(html)),
	}
}

var templates = map[Template]templateSet{
	NotifyPlayers: mustTemplate(string(NotifyPlayers),
		`{{.ActorName}} just completed {{.TaskName}}!`,
		"Hi {{.RecipientName}},\n\n{{.ActorName}} just completed {{.TaskName}}.\n\nSee it here: {{.Link}}\n",
		`<p>Hi {{.RecipientName}},</p><p>{{.ActorName}} just completed <strong>{{.TaskName}}</strong>.</p><p><a href="{{.Link}}">View the game</a></p>`,
	),
	ChallengeNotification: mustTemplate(string(ChallengeNotification),
		`{{.ActorName}} challenged {{.CompleterName}}'s {{.TaskName}}`,
		"Hi {{.RecipientName}},\n\n{{.ActorName}} disputes that {{.CompleterName}} completed {{.TaskName}}:\n\n{{.Description}}\n\nAs commissioner, decide here: {{.Link}}\n",
		`<p>Hi {{.RecipientName}},</p><p>{{.ActorName}} disputes that {{.CompleterName}} completed <strong>{{.TaskName}}</strong>:</p><blockquote>{{.Description}}</blockquote><p><a href="{{.Link}}">Review the challenge</a></p>`,
	),
	ChallengeAccepted: mustTemplate(string(ChallengeAccepted),
		`Challenge accepted: {{.TaskName}}`,
		"Hi {{.RecipientName}},\n\nThe commissioner accepted {{.ActorName}}'s challenge of {{.CompleterName}}'s {{.TaskName}}.\n\n{{.Link}}\n",
		`<p>Hi {{.RecipientName}},</p><p>The commissioner accepted {{.ActorName}}'s challenge of {{.CompleterName}}'s <strong>{{.TaskName}}</strong>.</p><p><a href="{{.Link}}">View the game</a></p>`,
	),
	ChallengeRejected: mustTemplate(string(ChallengeRejected),
		`Challenge rejected: {{.TaskName}}`,
		"Hi {{.RecipientName}},\n\nThe commissioner rejected your challenge of {{.CompleterName}}'s {{.TaskName}}.\n\n{{.Link}}\n",
		`<p>Hi {{.RecipientName}},</p><p>The commissioner rejected your challenge of {{.CompleterName}}'s <strong>{{.TaskName}}</strong>.</p><p><a href="{{.Link}}">View the game</a></p>`,
	),
}

type Client struct {
	mu          sync.RWMutex
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverToken != ""
}

// UpdateConfig swaps the Postmark credentials at runtime.
func (c *Client) UpdateConfig(serverToken, fromEmail, baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverToken = serverToken
	c.fromEmail = fromEmail
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// GameLink returns the web link for a game.
func (c *Client) GameLink(gameID int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s/games/%d", c.baseURL, gameID)
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// Send renders tmpl with data and delivers it to toEmail through Postmark.
func (c *Client) Send(ctx context.Context, tmpl Template, toEmail string, data Data) error {
	c.mu.RLock()
	token, from := c.serverToken, c.fromEmail
	c.mu.RUnlock()

	if token == "" {
		return fmt.Errorf("email client not configured: missing server token")
	}
	if toEmail == "" {
		return fmt.Errorf("send %s: missing recipient address", tmpl)
	}

	set, ok := templates[tmpl]
	if !ok {
		return fmt.Errorf("unknown email template %q", tmpl)
	}
	if data.Link == "" && data.GameID != 0 {
		data.Link = c.GameLink(data.GameID)
	}

	var subject, text, html bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	if err := set.text.Execute(&text, data); err != nil {
		return fmt.Errorf("render text body: %w", err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return fmt.Errorf("render html body: %w", err)
	}

	payload := postmarkEmail{
		From:     from,
		To:       toEmail,
		Subject:  subject.String(),
		HtmlBody: html.String(),
		TextBody: text.String(),
		Tag:      string(tmpl),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
