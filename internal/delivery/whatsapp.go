package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"procurement/internal/model"
)

// WhatsAppSender posts the RFQ to a WhatsApp messaging gateway over HTTP.
type WhatsAppSender struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewWhatsAppSender(baseURL, token string, timeout time.Duration) *WhatsAppSender {
	return &WhatsAppSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *WhatsAppSender) Method() model.Channel {
	return model.ChannelWhatsApp
}

type whatsAppDocument struct {
	FileName string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type whatsAppRequest struct {
	To       string           `json:"to"`
	Text     string           `json:"text"`
	Document whatsAppDocument `json:"document"`
}

type whatsAppResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

func (s *WhatsAppSender) Send(ctx context.Context, supplier model.Supplier, doc *Document, msg Message) error {
	number := normalizeNumber(supplier.MessagingNumber())
	if number == "" {
		return ErrNoAddress
	}

	payload, err := json.Marshal(whatsAppRequest{
		To:   number,
		Text: msg.Subject + "\n\n" + msg.Body,
		Document: whatsAppDocument{
			FileName: doc.FileName,
			MimeType: doc.ContentType,
			Data:     base64.StdEncoding.EncodeToString(doc.Content),
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result whatsAppResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("whatsapp gateway: invalid response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("whatsapp gateway rejected message: %s", result.Error)
	}
	return nil
}

// normalizeNumber keeps digits and a leading plus sign.
func normalizeNumber(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.String() == "+" {
		return ""
	}
	return b.String()
}
