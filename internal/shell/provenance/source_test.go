package provenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const revision = "0123456789abcdef0123456789abcdef01234567"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner answers git and npm with fixed outputs and counts calls.
type fakeRunner struct {
	git, npm       string
	gitErr, npmErr error
	calls          atomic.Int64
}

func (f *fakeRunner) run(_ context.Context, _ string, name string, _ ...string) ([]byte, error) {
	f.calls.Add(1)
	switch name {
	case "git":
		return []byte(f.git), f.gitErr
	case "npm":
		return []byte(f.npm), f.npmErr
	}
	return nil, errors.New("unexpected command")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "bare", in: revision},
		{name: "prefixed", in: "0x" + revision},
		{name: "trailing newline", in: revision + "\n"},
		{name: "short", in: "abc", wantErr: true},
		{name: "not hex", in: strings.Repeat("z", 40), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMarker)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0x"+revision, m.Hex())
		})
	}
}

func TestMarker_Override(t *testing.T) {
	f := &fakeRunner{}
	s := NewSource(Config{Override: revision}, f.run, testLogger())

	m, err := s.Marker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x"+revision, m.Hex())
	assert.Zero(t, f.calls.Load())
}

func TestMarker_GitFirst(t *testing.T) {
	f := &fakeRunner{git: revision + "\n", npm: strings.Repeat("f", 40)}
	s := NewSource(Config{}, f.run, testLogger())

	m, err := s.Marker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x"+revision, m.Hex())
}

func TestMarker_FallsBackToNpm(t *testing.T) {
	f := &fakeRunner{gitErr: errors.New("not a git repository"), npm: revision + "\n"}
	s := NewSource(Config{}, f.run, testLogger())

	m, err := s.Marker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x"+revision, m.Hex())
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestMarker_Unavailable(t *testing.T) {
	f := &fakeRunner{gitErr: errors.New("no git"), npmErr: errors.New("no npm")}
	s := NewSource(Config{}, f.run, testLogger())

	_, err := s.Marker(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMarker_Memoized(t *testing.T) {
	f := &fakeRunner{git: revision}
	s := NewSource(Config{}, f.run, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Marker(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := s.Marker(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, f.calls.Load(), int64(16))

	before := f.calls.Load()
	_, err = s.Marker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, f.calls.Load(), "cached marker is reused")
}
