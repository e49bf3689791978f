package notify

import (
	"context"
	"net/http"

	"github.com/teslashibe/go-shesafe/internal/httpc"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// Webhook POSTs each alert as JSON to a URL.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook notifier. A nil client uses httpc.Client.
func NewWebhook(url string, headers map[string]string, client *http.Client) *Webhook {
	if client == nil {
		client = httpc.Client
	}
	return &Webhook{url: url, headers: headers, client: client}
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	alert.Event
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (w *Webhook) Send(ctx context.Context, ev alert.Event) error {
	return httpc.PostJSON(ctx, w.client, w.url, webhookPayload{
		Event:   ev,
		Subject: Subject(ev),
		Text:    Body(ev),
	}, w.headers)
}
