package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://graph.facebook.com/v20.0"

// Sender delivers one plain text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

type WhatsApp struct {
	APIURL        string
	PhoneNumberID string
	Token         string
	HTTP          *http.Client
}

func NewWhatsApp(apiURL, phoneNumberID, token string) *WhatsApp {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &WhatsApp{
		APIURL:        strings.TrimRight(apiURL, "/"),
		PhoneNumberID: phoneNumberID,
		Token:         token,
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsApp) endpoint() string {
	return fmt.Sprintf("%s/%s/messages", w.APIURL, w.PhoneNumberID)
}

func (w *WhatsApp) Send(ctx context.Context, to, text string) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                NormalizePhone(to),
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.Token)

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp error: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// NormalizePhone keeps digits only, the form the Cloud API expects.
func NormalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LogSender is used when no provider is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, text string) error {
	log.Printf("notify: (not configured) to=%s: %s", to, text)
	return nil
}
