package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"go.uber.org/zap"
)

// SweepStale removes audio files older than maxAge left behind by a crashed process.
func (a *Acquirer) SweepStale(maxAge time.Duration) int {
	entries, err := os.ReadDir(a.tempDir)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.tempDir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		logger.Base().Info("Removed stale audio files", zap.Int("count", removed), zap.String("dir", a.tempDir))
	}
	return removed
}

// StartJanitor sweeps the temp dir every interval until ctx is done.
func (a *Acquirer) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.SweepStale(maxAge)
			case <-ctx.Done():
				logger.Base().Info("Audio janitor stopped")
				return
			}
		}
	}()

	logger.Base().Info("Started audio janitor", zap.Duration("interval", interval))
}
