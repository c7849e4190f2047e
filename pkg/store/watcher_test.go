package store

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherNotifiesOnRecordChange(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := newWatcher(zerolog.Nop(), 50*time.Millisecond, func() {
		fired.Add(1)
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_1.json"), []byte(`{}`), 0o644))

	assert.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := newWatcher(zerolog.Nop(), 200*time.Millisecond, func() {
		fired.Add(1)
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Watch(dir))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_1.json"), []byte(`{}`), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatcherStopCancelsPendingNotify(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := newWatcher(zerolog.Nop(), 200*time.Millisecond, func() {
		fired.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, w.Watch(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_1.json"), []byte(`{}`), 0o644))

	// Stop inside the debounce window; the pending notification must not
	// fire afterwards.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := newWatcher(zerolog.Nop(), 50*time.Millisecond, func() {
		fired.Add(1)
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
