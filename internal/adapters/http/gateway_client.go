package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// GatewayClient talks to the WhatsApp gateway that emitted the webhook. Every call is
// addressed by the server URL, instance and API key carried in the event itself.
type GatewayClient struct {
	HTTPClient *http.Client
	Formats    []MessageFormat
}

// OutgoingMessage is a text reply to a conversation.
type OutgoingMessage struct {
	ServerURL string
	Instance  string
	APIKey    string
	Number    string
	Text      string
	QuotedID  string
}

// MessageFormat builds one request body shape accepted by the sendText endpoint.
type MessageFormat struct {
	Name string
	Body func(msg OutgoingMessage) interface{}
}

type sendOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

type textMessage struct {
	Text string `json:"text"`
}

type legacySendTextRequest struct {
	Number      string      `json:"number"`
	Options     sendOptions `json:"options"`
	TextMessage textMessage `json:"textMessage"`
}

type quotedKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type quotedMessage struct {
	Key quotedKey `json:"key"`
}

type quotedSendTextRequest struct {
	Number string        `json:"number"`
	Text   string        `json:"text"`
	Quoted quotedMessage `json:"quoted"`
}

var (
	LegacyFormat = MessageFormat{
		Name: "legacy",
		Body: func(msg OutgoingMessage) interface{} {
			return legacySendTextRequest{
				Number:      msg.Number,
				Options:     sendOptions{Delay: 1200, Presence: "composing", LinkPreview: false},
				TextMessage: textMessage{Text: msg.Text},
			}
		},
	}

	QuotedFormat = MessageFormat{
		Name: "quoted",
		Body: func(msg OutgoingMessage) interface{} {
			return quotedSendTextRequest{
				Number: msg.Number,
				Text:   msg.Text,
				Quoted: quotedMessage{Key: quotedKey{RemoteJID: msg.Number, FromMe: false, ID: msg.QuotedID}},
			}
		},
	}
)

// NewGatewayClient creates a client that tries the legacy body first and the quoted body second.
func NewGatewayClient(timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		HTTPClient: &http.Client{Timeout: timeout},
		Formats:    []MessageFormat{LegacyFormat, QuotedFormat},
	}
}

// SendText posts msg with each format in order and stops at the first accepted one.
func (c *GatewayClient) SendText(ctx context.Context, msg OutgoingMessage) error {
	url := fmt.Sprintf("%s/message/sendText/%s", msg.ServerURL, msg.Instance)

	var errs []error
	for _, format := range c.Formats {
		err := c.postJSON(ctx, url, msg.APIKey, format.Body(msg), nil, http.StatusOK, http.StatusCreated)
		if err == nil {
			logger.Info(ctx, "Reply delivered", zap.String("format", format.Name), zap.String("number", msg.Number))
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrDelivery, ctx.Err())
		}
		logger.Warn(ctx, "Reply format rejected, trying next", zap.String("format", format.Name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", format.Name, err))
	}

	return fmt.Errorf("%w: %w", domain.ErrDelivery, errors.Join(errs...))
}

type base64Request struct {
	Message struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	} `json:"message"`
	ConvertToMp4 bool `json:"convertToMp4"`
}

type base64Response struct {
	Base64 string `json:"base64"`
}

// FetchBase64 asks the gateway for the inline media of the event's message.
func (c *GatewayClient) FetchBase64(ctx context.Context, event *domain.IncomingEvent) (string, error) {
	url := fmt.Sprintf("%s/chat/getBase64FromMediaMessage/%s", event.ServerURL, event.Instance)

	var body base64Request
	body.Message.Key.ID = event.MessageID
	body.ConvertToMp4 = false

	var resp base64Response
	if err := c.postJSON(ctx, url, event.APIKey, body, &resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}
	if resp.Base64 == "" {
		return "", fmt.Errorf("%w: empty base64 in response", domain.ErrMediaUnavailable)
	}

	logger.Debug(ctx, "Fetched media from gateway", zap.String("message_id", event.MessageID), zap.Int("length", len(resp.Base64)))
	return resp.Base64, nil
}

func (c *GatewayClient) postJSON(ctx context.Context, url, apiKey string, payload, out interface{}, accepted ...int) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if !statusIn(resp.StatusCode, accepted) {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), maxErrorBody))
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func statusIn(code int, accepted []int) bool {
	for _, a := range accepted {
		if code == a {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
