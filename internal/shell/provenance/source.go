// Package provenance resolves the source-revision marker recorded with
// every registration. The revision comes from a configured override, the
// git checkout, or the published npm package, in that order.
package provenance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MarkerLength is the byte length of a marker.
const MarkerLength = 20

// Marker is a source revision as a fixed 20 byte value.
type Marker [MarkerLength]byte

// Hex returns the 0x-prefixed form.
func (m Marker) Hex() string {
	return "0x" + hex.EncodeToString(m[:])
}

var (
	// ErrUnavailable is returned when no source yields a revision.
	ErrUnavailable = errors.New("source revision unavailable")

	// ErrInvalidMarker is returned when a revision is not 40 hex characters.
	ErrInvalidMarker = errors.New("invalid source revision")
)

// Runner runs a command in dir and returns its standard output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// Config holds provenance settings.
type Config struct {
	// Override, when set, is used instead of asking git or npm.
	Override string
	// Dir is where git and npm are run.
	Dir string
	// TTL bounds how long a resolved marker is reused.
	TTL time.Duration
}

// Source resolves and memoizes the marker.
type Source struct {
	cfg    Config
	run    Runner
	cache  *gocache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewSource creates a source. A nil runner uses ExecRunner.
func NewSource(cfg Config, run Runner, logger *slog.Logger) *Source {
	if cfg.TTL == 0 {
		cfg.TTL = gocache.NoExpiration
	}
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		run:    run,
		cache:  gocache.New(cfg.TTL, 10*time.Minute),
		logger: logger.With("component", "provenance"),
	}
}

// Marker returns the current source revision. Concurrent callers share one
// lookup.
func (s *Source) Marker(ctx context.Context) (Marker, error) {
	key := "marker:" + s.cfg.Dir
	if v, ok := s.cache.Get(key); ok {
		if m, ok := v.(Marker); ok {
			return m, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		m, err := s.resolve(ctx)
		if err != nil {
			return Marker{}, err
		}
		s.cache.Set(key, m, gocache.DefaultExpiration)
		return m, nil
	})
	if err != nil {
		return Marker{}, err
	}
	return v.(Marker), nil
}

func (s *Source) resolve(ctx context.Context) (Marker, error) {
	if s.cfg.Override != "" {
		return Parse(s.cfg.Override)
	}

	out, gitErr := s.run(ctx, s.cfg.Dir, "git", "rev-parse", "HEAD")
	if gitErr == nil {
		var m Marker
		if m, gitErr = Parse(string(out)); gitErr == nil {
			s.logger.Debug("resolved source revision", "source", "git", "marker", m.Hex())
			return m, nil
		}
	}
	s.logger.Debug("git revision unavailable, trying npm", "error", gitErr)

	out, npmErr := s.run(ctx, s.cfg.Dir, "npm", "show", ".", "gitHead")
	if npmErr == nil {
		var m Marker
		if m, npmErr = Parse(string(out)); npmErr == nil {
			s.logger.Debug("resolved source revision", "source", "npm", "marker", m.Hex())
			return m, nil
		}
	}
	return Marker{}, fmt.Errorf("%w: git: %v; npm: %v", ErrUnavailable, gitErr, npmErr)
}

// Parse reads a 40 character hex revision, with or without 0x.
func Parse(s string) (Marker, error) {
	var m Marker
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != MarkerLength*2 {
		return m, fmt.Errorf("%w: %q", ErrInvalidMarker, strings.TrimSpace(s))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return m, fmt.Errorf("%w: %q", ErrInvalidMarker, raw)
	}
	copy(m[:], b)
	return m, nil
}
