package capture

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daq-console/internal/domain"
)

func writeEvents(t *testing.T, path string, events []domain.Event) {
	t.Helper()

	w, err := OpenWriter(path)
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, w.Append(ev))
	}
	require.NoError(t, w.Close())
}

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.dqc")
	events := []domain.Event{
		{Timestamp: 100, Channel: 0, Samples: []uint16{1, 2, 3, 4}},
		{Timestamp: 250, Channel: 1, Samples: []uint16{65535, 0}},
		{Timestamp: 400, Channel: 0, Samples: nil},
	}
	writeEvents(t, path, events)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for i, want := range events {
		got, err := r.Next()
		require.NoError(t, err, "event %d", i)
		assert.Equal(t, want.Timestamp, got.Timestamp)
		assert.Equal(t, want.Channel, got.Channel)
		if len(want.Samples) == 0 {
			assert.Empty(t, got.Samples)
		} else {
			assert.Equal(t, want.Samples, got.Samples)
		}
	}

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriterCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.dqc")
	w, err := OpenWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Append(domain.Event{Samples: []uint16{1}}), ErrWrite)
}

func TestWriterBytesWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.dqc")
	w, err := OpenWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(domain.Event{Samples: []uint16{1, 2, 3}}))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), w.BytesWritten())
}

func TestWriterRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.dqc")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := OpenWriter(path)
	require.Error(t, err)
}

func TestReaderRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dqc")
	require.NoError(t, os.WriteFile(path, []byte("not a capture file"), 0o644))

	_, err := OpenReader(path)
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestReaderRejectsTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.dqc")
	writeEvents(t, path, []domain.Event{{Timestamp: 1, Samples: []uint16{1, 2, 3, 4, 5}}})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o644))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestFilenameConvention(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 4, 5, 0, time.UTC)
	assert.Equal(t, "/data/scope_20260830T120405Z.dqc", Filename("/data/scope", now, 0))
	assert.Equal(t, "/data/scope_20260830T120405Z_1.dqc", Filename("/data/scope", now, 1))
	assert.Equal(t, "/data/scope_20260830T120405Z_2.dqc", Filename("/data/scope", now, 2))
}

func TestRegistryPublishCurrent(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Current()
	assert.False(t, ok, "empty registry should report no capture")

	reg.Publish("/data/a.dqc")
	path, ok := reg.Current()
	require.True(t, ok)
	assert.Equal(t, "/data/a.dqc", path)

	reg.Publish("/data/b.dqc")
	path, _ = reg.Current()
	assert.Equal(t, "/data/b.dqc", path)
}

func TestRegistryConcurrentReaders(t *testing.T) {
	reg := NewRegistry()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			reg.Publish("/data/a.dqc")
			reg.Publish("/data/b.dqc")
		}
	}()

	for i := 0; i < 1000; i++ {
		if path, ok := reg.Current(); ok {
			// Always a complete value, never a half-updated pointer.
			if path != "/data/a.dqc" && path != "/data/b.dqc" {
				t.Fatalf("unexpected path %q", path)
			}
		}
	}
	<-done
}
