package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubArchiver struct {
	objectPath string
	content    string
	err        error
}

func (a *stubArchiver) ArchiveFile(_ context.Context, objectPath, localPath string) (string, error) {
	a.objectPath = objectPath
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	a.content = string(data)
	if a.err != nil {
		return "", a.err
	}
	return "gs://archive/" + objectPath, nil
}

type stubPublisher struct {
	events []string
	notes  []ProcessedNote
	err    error
}

func (p *stubPublisher) PublishJSON(_ context.Context, eventName string, v interface{}) error {
	p.events = append(p.events, eventName)
	if note, ok := v.(ProcessedNote); ok {
		p.notes = append(p.notes, note)
	}
	return p.err
}

func TestArchiveObjectPath(t *testing.T) {
	event := &domain.IncomingEvent{ConversationID: "5511999999999@s.whatsapp.net", MessageID: "ABC"}
	at := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026/10/18/5511999999999/ABC.ogg", ArchiveObjectPath(event, "/tmp/voicenote-x.ogg", at))
}

func TestProcess_ArchivesAndPublishes(t *testing.T) {
	h := newHarness(t)
	archiver := &stubArchiver{}
	publisher := &stubPublisher{}
	h.svc.WithArchiver(archiver).WithPublisher(publisher)

	_, err := h.svc.Process(context.Background(), h.event())
	require.NoError(t, err)

	assert.Contains(t, archiver.objectPath, "/5511999999999/msg-1.mp3")
	assert.Equal(t, "ogg-bytes", archiver.content)

	require.Equal(t, []string{EventProcessed}, publisher.events)
	note := publisher.notes[0]
	assert.Equal(t, contactJID, note.ConversationID)
	assert.Equal(t, "msg-1", note.MessageID)
	assert.Equal(t, "groq", note.Provider)
	assert.Equal(t, "pt", note.TargetLanguage)
	assert.False(t, note.Translated)
	assert.True(t, note.Summarized)
	assert.Equal(t, "gs://archive/"+archiver.objectPath, note.ArchiveURI)
	assertTempDirEmpty(t, h.tempDir)
}

func TestProcess_HookFailuresDoNotFailRun(t *testing.T) {
	h := newHarness(t)
	publisher := &stubPublisher{err: errors.New("pubsub down")}
	h.svc.WithArchiver(&stubArchiver{err: errors.New("bucket missing")}).WithPublisher(publisher)

	res, err := h.svc.Process(context.Background(), h.event())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)
	require.Len(t, publisher.notes, 1)
	assert.Empty(t, publisher.notes[0].ArchiveURI)
	assertTempDirEmpty(t, h.tempDir)
}

func TestProcess_FailedRunPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.gateway.sendStatus = 500
	publisher := &stubPublisher{}
	h.svc.WithPublisher(publisher)

	_, err := h.svc.Process(context.Background(), h.event())
	require.Error(t, err)
	assert.Empty(t, publisher.events)
}
