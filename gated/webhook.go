package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Embed colors for alert severities.
const (
	colorRed    = 0xFF0000
	colorGreen  = 0x00FF00
	colorOrange = 0xFFA500
)

// Webhook posts embed-style alerts to a Discord-compatible endpoint.
// Delivery failures are reported to the caller but must never take the
// daemon down; the monitor logs and moves on.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook client. An empty URL yields a nil
// client, which callers treat as "not configured".
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []webhookField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Footer      webhookFooter  `json:"footer"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

// SendEmbed posts a single embed with username and IP fields.
func (w *Webhook) SendEmbed(title, description string, color int, username, ip, mentions string) error {
	payload := webhookPayload{
		Content: mentions,
		Embeds: []webhookEmbed{{
			Title:       title,
			Description: description,
			Color:       color,
			Fields: []webhookField{
				{Name: "Username", Value: username, Inline: true},
				{Name: "IP Address", Value: ip, Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Footer:    webhookFooter{Text: "authgate security"},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	resp, err := w.httpClient.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
