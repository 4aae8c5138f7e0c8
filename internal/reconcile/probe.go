package reconcile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/arnvik/raido/internal/models"
)

// Artifacts smaller than this are treated as absent; a truncated fragment is
// not a finished download.
const minArtifactSize = 1024

// FSProbe checks dated download folders for finished artifacts.
type FSProbe struct {
	audioDir string
	videoDir string
	now      func() time.Time
}

// NewFSProbe creates a probe over the configured download base directories.
func NewFSProbe(audioDir, videoDir string) *FSProbe {
	return &FSProbe{audioDir: audioDir, videoDir: videoDir, now: time.Now}
}

// SetClock overrides the timestamp source. Used by tests.
func (p *FSProbe) SetClock(now func() time.Time) {
	p.now = now
}

// Find looks for an artifact named after the external id, first in today's
// dated folder, then in any dated folder, then directly under the base.
func (p *FSProbe) Find(kind models.Kind, externalID string) (string, bool) {
	if externalID == "" {
		return "", false
	}
	base := p.videoDir
	if kind == models.KindAudio {
		base = p.audioDir
	}
	today := p.now().Format("20060102")
	glob := "*" + externalID + "*." + kind.Ext()

	patterns := []string{
		filepath.Join(base, today, glob),
		filepath.Join(base, "*", glob),
		filepath.Join(base, glob),
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if info.Size() >= minArtifactSize {
				return m, true
			}
		}
	}
	return "", false
}
