package markerfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdclessontracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	instant := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save("learner1", domain.SessionBTT, instant))

	got, ok, err := store.Load("learner1", domain.SessionBTT)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, instant.Equal(got))

	// a different type for the same user is independent
	_, ok, err = store.Load("learner1", domain.SessionRTT)
	require.NoError(t, err)
	assert.False(t, ok)

	// and so is a different user for the same type
	_, ok, err = store.Load("learner2", domain.SessionBTT)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("learner1", domain.SessionPT, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, store.Save("learner1", domain.SessionPT, time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)))

	got, ok, err := store.Load("learner1", domain.SessionPT)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)))
}

func TestStore_Clear(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("learner1", domain.SessionBTT, time.Now()))
	require.NoError(t, store.Clear("learner1", domain.SessionBTT))

	_, ok, err := store.Load("learner1", domain.SessionBTT)
	require.NoError(t, err)
	assert.False(t, ok)

	// clearing again is not an error
	require.NoError(t, store.Clear("learner1", domain.SessionBTT))
}

func TestStore_LoadToleratesTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := filepath.Join(dir, "last_cdc_session_learner1_btt")
	require.NoError(t, os.WriteFile(path, []byte("20240101-0900\n"), 0o644))

	got, ok, err := store.Load("learner1", domain.SessionBTT)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
}

func TestStore_LoadCorruptContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := filepath.Join(dir, "last_cdc_session_learner1_btt")
	require.NoError(t, os.WriteFile(path, []byte("not a timestamp"), 0o644))

	_, ok, err := store.Load("learner1", domain.SessionBTT)
	require.Error(t, err)
	assert.False(t, ok)
}
