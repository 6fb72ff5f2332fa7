package pipeline

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
)

// SkipReason says why an event was not processed.
type SkipReason string

const (
	SkipNotAudio     SkipReason = "not_audio"
	SkipAccessDenied SkipReason = "access_denied"
	SkipGroupsOnly   SkipReason = "groups_only"
	SkipSelfMessage  SkipReason = "self_message"
)

var skipMessages = map[SkipReason]string{
	SkipNotAudio:     "Not an audio message",
	SkipAccessDenied: "Message not allowed for processing",
	SkipGroupsOnly:   "Only group messages are processed",
	SkipSelfMessage:  "Self messages are not processed",
}

// AccessPolicy decides whether a conversation may be processed.
type AccessPolicy interface {
	CanProcess(ctx context.Context, conversationID string, settings *config.Settings) (bool, error)
}

// Result is the outcome of one pipeline run that did not fail.
type Result struct {
	Skipped bool
	Reason  SkipReason
	Message string

	Reply    string
	Language string
}

func skipped(reason SkipReason) *Result {
	return &Result{Skipped: true, Reason: reason, Message: skipMessages[reason]}
}

// Filter applies the processing rules in order: audio type, access policy, groups-only
// mode, then self messages. A nil result means the event should be processed.
func Filter(ctx context.Context, event *domain.IncomingEvent, settings *config.Settings, access AccessPolicy) (*Result, error) {
	if !event.IsAudio() {
		return skipped(SkipNotAudio), nil
	}

	allowed, err := access.CanProcess(ctx, event.ConversationID, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to check access policy: %w", err)
	}
	if !allowed {
		return skipped(SkipAccessDenied), nil
	}

	if settings.ProcessMode == config.ProcessGroupsOnly && !event.IsGroup() {
		return skipped(SkipGroupsOnly), nil
	}

	if event.FromMe && !settings.ProcessSelfMessages {
		return skipped(SkipSelfMessage), nil
	}

	return nil, nil
}
