package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	GroupSuffix   = "@g.us"
	PrivateSuffix = "@s.whatsapp.net"

	audioMessageType = "audioMessage"
)

// IncomingEvent is the typed view of a gateway webhook. Raw keeps the original body for fan-out.
type IncomingEvent struct {
	ServerURL      string
	Instance       string
	APIKey         string
	EventName      string
	MessageID      string
	ConversationID string
	FromMe         bool
	MessageType    string
	MediaURL       string
	Raw            []byte
}

// IsAudio reports whether the message type tag denotes an audio message.
func (e *IncomingEvent) IsAudio() bool {
	return strings.Contains(e.MessageType, audioMessageType)
}

// IsGroup reports whether the conversation is a group conversation.
func (e *IncomingEvent) IsGroup() bool {
	return IsGroupConversation(e.ConversationID)
}

// HasMediaURL reports whether the audio is referenced by a remote URL instead of an inline payload.
func (e *IncomingEvent) HasMediaURL() bool {
	return e.MediaURL != ""
}

func IsGroupConversation(conversationID string) bool {
	return strings.Contains(conversationID, GroupSuffix)
}

func IsPrivateConversation(conversationID string) bool {
	return strings.Contains(conversationID, PrivateSuffix)
}

// ContactID strips the domain part of a conversation identifier.
func ContactID(conversationID string) string {
	if i := strings.Index(conversationID, "@"); i >= 0 {
		return conversationID[:i]
	}
	return conversationID
}

// ParseError describes a payload that cannot become an IncomingEvent.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid webhook payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid webhook payload: field %q %s", e.Field, e.Reason)
}

type webhookPayload struct {
	ServerURL string `json:"server_url"`
	Instance  string `json:"instance"`
	APIKey    string `json:"apikey"`
	Event     string `json:"event"`
	Data      *struct {
		Key *struct {
			ID        string `json:"id"`
			FromMe    *bool  `json:"fromMe"`
			RemoteJID string `json:"remoteJid"`
		} `json:"key"`
		MessageType string `json:"messageType"`
		Message     struct {
			MediaURL string `json:"mediaUrl"`
		} `json:"message"`
	} `json:"data"`
}

// ParseIncomingEvent validates a raw webhook body and returns the typed event.
func ParseIncomingEvent(body []byte) (*IncomingEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if payload.Data == nil {
		return nil, &ParseError{Field: "data", Reason: "is required"}
	}
	if payload.Data.Key == nil {
		return nil, &ParseError{Field: "data.key", Reason: "is required"}
	}

	required := []struct {
		field string
		value string
	}{
		{"server_url", payload.ServerURL},
		{"instance", payload.Instance},
		{"apikey", payload.APIKey},
		{"data.key.id", payload.Data.Key.ID},
		{"data.key.remoteJid", payload.Data.Key.RemoteJID},
		{"data.messageType", payload.Data.MessageType},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ParseError{Field: r.field, Reason: "is required"}
		}
	}
	if payload.Data.Key.FromMe == nil {
		return nil, &ParseError{Field: "data.key.fromMe", Reason: "is required"}
	}

	return &IncomingEvent{
		ServerURL:      strings.TrimRight(payload.ServerURL, "/"),
		Instance:       payload.Instance,
		APIKey:         payload.APIKey,
		EventName:      payload.Event,
		MessageID:      payload.Data.Key.ID,
		ConversationID: payload.Data.Key.RemoteJID,
		FromMe:         *payload.Data.Key.FromMe,
		MessageType:    payload.Data.MessageType,
		MediaURL:       payload.Data.Message.MediaURL,
		Raw:            body,
	}, nil
}
