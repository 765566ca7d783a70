// Package scanner runs exclusive, one-shot QR scanning sessions over a
// camera. A session owns the camera stream from Scan until it returns; the
// stream is closed on every exit path.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrBusy is returned when a session is already running.
	ErrBusy = errors.New("scanner: a scan is already in progress")
	// ErrCoolingDown is returned when a scan starts right after a hit.
	ErrCoolingDown = errors.New("scanner: cooling down after the last scan")
	// ErrCameraUnavailable wraps camera open and read failures, including
	// missing permissions.
	ErrCameraUnavailable = errors.New("scanner: camera unavailable")
	// ErrClosed is returned by a session stopped with Close.
	ErrClosed = errors.New("scanner: scan closed")
	// ErrNoCode means a frame or a whole stream held no readable code.
	ErrNoCode = errors.New("scanner: no code found")
)

// DefaultCooldown is the feedback window after a successful scan.
const DefaultCooldown = 1500 * time.Millisecond

// Camera opens frame streams.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until io.EOF.
type Stream interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts a code payload from a frame, or returns ErrNoCode.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

type Scanner struct {
	camera   Camera
	decoder  Decoder
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	closed  bool
	lastHit time.Time
}

type Option func(*Scanner)

func WithDecoder(d Decoder) Option {
	return func(s *Scanner) { s.decoder = d }
}

// WithCooldown sets the debounce window; zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(s *Scanner) { s.cooldown = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a scanner reading QR codes from camera.
func New(camera Camera, opts ...Option) *Scanner {
	s := &Scanner{
		camera:   camera,
		decoder:  QRDecoder{},
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan opens the camera and returns the first decoded payload.
func (s *Scanner) Scan(ctx context.Context) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.acquire(cancel); err != nil {
		return "", err
	}
	defer s.release()

	stream, err := s.camera.Open(ctx)
	if err != nil {
		if s.wasClosed() {
			return "", ErrClosed
		}
		return "", fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Warn("scanner: failed to close camera stream", "error", err)
		}
	}()

	for {
		frame, err := stream.Next(ctx)
		switch {
		case err == nil:
		case s.wasClosed():
			return "", ErrClosed
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, io.EOF):
			return "", ErrNoCode
		default:
			return "", fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}

		text, err := s.decoder.Decode(frame)
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				s.logger.Debug("scanner: frame not decoded", "error", err)
			}
			continue
		}

		s.mu.Lock()
		s.lastHit = s.now()
		s.mu.Unlock()
		return text, nil
	}
}

// Close stops the running session, if any.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.cancel != nil {
		s.closed = true
		s.cancel()
	}
}

// Active reports whether a session is running.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scanner) acquire(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrBusy
	}
	if s.cooldown > 0 && !s.lastHit.IsZero() && s.now().Sub(s.lastHit) < s.cooldown {
		return ErrCoolingDown
	}
	s.active = true
	s.closed = false
	s.cancel = cancel
	return nil
}

func (s *Scanner) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.cancel = nil
}

func (s *Scanner) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
