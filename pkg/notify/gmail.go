package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// GmailConfig configures email delivery through the Gmail API.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	TokenPath    string // JSON oauth2 token with a refresh token
	From         string
	To           []string
}

// Gmail sends alerts as plain-text email.
type Gmail struct {
	from    string
	to      []string
	service *gmail.Service
}

// NewGmail loads the stored token and creates the Gmail service. The token
// is refreshed automatically by the oauth2 transport.
func NewGmail(ctx context.Context, cfg GmailConfig) (*Gmail, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("notify: gmail: client id and secret are required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify: gmail: no recipients")
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("notify: gmail: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}

	service, err := gmail.NewService(ctx, option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("notify: gmail: create service: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = "me"
	}
	return &Gmail{from: from, to: cfg.To, service: service}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &token, nil
}

func (g *Gmail) Name() string { return "gmail" }

func (g *Gmail) Send(ctx context.Context, ev alert.Event) error {
	raw := EncodeMessage(g.from, g.to, Subject(ev), Body(ev))
	_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

// EncodeMessage builds an RFC 2822 message and encodes it the way the Gmail
// API expects (base64url).
func EncodeMessage(from string, to []string, subject, body string) string {
	var b strings.Builder
	if from != "me" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
