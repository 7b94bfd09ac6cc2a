// Package markerfile persists the last-notified earliest-session instant as
// one plain-text file per (user, session type).
package markerfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cdclessontracker/internal/domain"
)

// markerLayout is the fixed-width form stored on disk, e.g. "20240101-0900".
const markerLayout = "20060102-1504"

type store struct {
	dir string
}

// NewStore returns a MarkerStore writing to dir; an empty dir falls back to
// the system temp directory. File names embed both the user and the session
// type so runs for different users or types never collide.
func NewStore(dir string) domain.MarkerStore {
	if dir == "" {
		dir = os.TempDir()
	}
	return &store{dir: dir}
}

func (s *store) path(user string, t domain.SessionType) string {
	return filepath.Join(s.dir, fmt.Sprintf("last_cdc_session_%s_%s", user, t))
}

func (s *store) Load(user string, t domain.SessionType) (time.Time, bool, error) {
	raw, err := os.ReadFile(s.path(user, t))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	instant, err := time.Parse(markerLayout, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt marker file %s: %w", s.path(user, t), err)
	}
	return instant, true, nil
}

func (s *store) Save(user string, t domain.SessionType, instant time.Time) error {
	return os.WriteFile(s.path(user, t), []byte(instant.Format(markerLayout)), 0o644)
}

func (s *store) Clear(user string, t domain.SessionType) error {
	err := os.Remove(s.path(user, t))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
