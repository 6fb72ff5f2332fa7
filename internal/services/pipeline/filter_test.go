package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccess struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubAccess) CanProcess(_ context.Context, _ string, _ *config.Settings) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

func TestFilter(t *testing.T) {
	base := config.DefaultSettings

	groupsOnly := base
	groupsOnly.ProcessMode = config.ProcessGroupsOnly

	noSelf := base
	noSelf.ProcessSelfMessages = false

	tests := []struct {
		name     string
		event    domain.IncomingEvent
		settings config.Settings
		allowed  bool
		want     SkipReason
	}{
		{"not audio", domain.IncomingEvent{MessageType: "conversation", ConversationID: "1@s.whatsapp.net"}, base, true, SkipNotAudio},
		{"audio passes", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "1@s.whatsapp.net"}, base, true, ""},
		{"access denied", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "1@s.whatsapp.net"}, base, false, SkipAccessDenied},
		{"groups only rejects private", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "1@s.whatsapp.net"}, groupsOnly, true, SkipGroupsOnly},
		{"groups only accepts group", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "123-456@g.us"}, groupsOnly, true, ""},
		{"self disabled", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "1@s.whatsapp.net", FromMe: true}, noSelf, true, SkipSelfMessage},
		{"self enabled", domain.IncomingEvent{MessageType: "audioMessage", ConversationID: "1@s.whatsapp.net", FromMe: true}, base, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := tt.settings
			res, err := Filter(context.Background(), &tt.event, &settings, &stubAccess{allowed: tt.allowed})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.True(t, res.Skipped)
			assert.Equal(t, tt.want, res.Reason)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestFilter_OrderIsFixed(t *testing.T) {
	// A non-audio event is rejected before the access policy is consulted.
	access := &stubAccess{allowed: false}
	settings := config.DefaultSettings
	res, err := Filter(context.Background(), &domain.IncomingEvent{MessageType: "imageMessage"}, &settings, access)
	require.NoError(t, err)
	assert.Equal(t, SkipNotAudio, res.Reason)
	assert.Equal(t, 0, access.calls)

	// Access denial wins over the self-message rule.
	settings.ProcessSelfMessages = false
	res, err = Filter(context.Background(), &domain.IncomingEvent{MessageType: "audioMessage", FromMe: true, ConversationID: "1@s.whatsapp.net"}, &settings, access)
	require.NoError(t, err)
	assert.Equal(t, SkipAccessDenied, res.Reason)
}

func TestFilter_AccessError(t *testing.T) {
	settings := config.DefaultSettings
	_, err := Filter(context.Background(), &domain.IncomingEvent{MessageType: "audioMessage"}, &settings, &stubAccess{err: errors.New("redis down")})
	assert.Error(t, err)
}
