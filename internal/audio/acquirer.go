// Package audio turns a webhook's audio reference into a local temp file and guarantees its removal.
package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	filePrefix       = "voicenote-"
	defaultExtension = ".mp3"
)

// MediaFetcher retrieves the inline base64 payload of an audio message from the gateway.
type MediaFetcher interface {
	FetchBase64(ctx context.Context, event *domain.IncomingEvent) (string, error)
}

// Resource is a temp file holding the audio of one run.
type Resource struct {
	Path string
	Size int64

	once sync.Once
	err  error
}

// Release deletes the file. It is safe to call more than once.
func (r *Resource) Release() error {
	r.once.Do(func() {
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			r.err = fmt.Errorf("failed to remove audio file: %w", err)
		}
	})
	return r.err
}

// Acquirer materializes audio from an inline payload or a remote URL.
type Acquirer struct {
	tempDir    string
	httpClient *http.Client
	media      MediaFetcher
}

func NewAcquirer(tempDir string, downloadTimeout time.Duration, media MediaFetcher) *Acquirer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Acquirer{
		tempDir:    tempDir,
		httpClient: &http.Client{Timeout: downloadTimeout},
		media:      media,
	}
}

// Acquire downloads the media URL when present, otherwise fetches the base64 payload from the gateway.
func (a *Acquirer) Acquire(ctx context.Context, event *domain.IncomingEvent) (*Resource, error) {
	if event.HasMediaURL() {
		return a.Download(ctx, event.MediaURL)
	}

	if a.media == nil {
		return nil, domain.ErrMediaUnavailable
	}
	payload, err := a.media.FetchBase64(ctx, event)
	if err != nil {
		return nil, err
	}
	return a.FromBase64(ctx, payload)
}

// FromBase64 decodes payload into a new temp file.
func (a *Acquirer) FromBase64(ctx context.Context, payload string) (*Resource, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	res, err := a.write(defaultExtension, func(f *os.File) (int64, error) {
		n, err := f.Write(data)
		return int64(n), err
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "Decoded inline audio", zap.String("path", res.Path), zap.Int64("bytes", res.Size))
	return res, nil
}

// Download fetches rawURL into a new temp file within the acquirer's download timeout.
func (a *Acquirer) Download(ctx context.Context, rawURL string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrDownload, resp.StatusCode)
	}

	res, err := a.write(extensionFor(rawURL), func(f *os.File) (int64, error) {
		return io.Copy(f, resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}

	logger.Debug(ctx, "Downloaded audio", zap.String("url", rawURL), zap.Int64("bytes", res.Size))
	return res, nil
}

func (a *Acquirer) write(ext string, fill func(f *os.File) (int64, error)) (*Resource, error) {
	if err := os.MkdirAll(a.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(a.tempDir, filePrefix+uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio file: %w", err)
	}

	n, err := fill(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}

	return &Resource{Path: path, Size: n}, nil
}

func extensionFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultExtension
	}
	switch ext := strings.ToLower(filepath.Ext(u.Path)); ext {
	case ".mp3", ".ogg", ".oga", ".opus", ".m4a", ".mp4", ".wav", ".webm", ".flac", ".mpeg", ".mpga":
		return ext
	default:
		return defaultExtension
	}
}
