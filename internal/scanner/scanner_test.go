package scanner

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/receipt"
)

type fakeStream struct {
	mu     sync.Mutex
	frames []image.Image
	block  bool
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return f, nil
	}
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	opened chan struct{}
}

func (c *fakeCamera) Open(context.Context) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.opened != nil {
		close(c.opened)
	}
	return c.stream, nil
}

func qrFrame(t *testing.T, text string) image.Image {
	t.Helper()
	img, err := receipt.QRImage(text, 200, 20)
	require.NoError(t, err)
	return img
}

func blankFrame() image.Image {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestScanReturnsFirstCodeAndClosesStream(t *testing.T) {
	stream := &fakeStream{frames: []image.Image{blankFrame(), qrFrame(t, "KOK-42"), qrFrame(t, "KOK-43")}}
	s := New(&fakeCamera{stream: stream})

	text, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KOK-42", text)
	assert.True(t, stream.isClosed())
	assert.False(t, s.Active())
}

func TestScanExhaustedStream(t *testing.T) {
	stream := &fakeStream{frames: []image.Image{blankFrame()}}
	_, err := New(&fakeCamera{stream: stream}).Scan(context.Background())
	assert.ErrorIs(t, err, ErrNoCode)
	assert.True(t, stream.isClosed())
}

func TestScanCameraFailure(t *testing.T) {
	s := New(&fakeCamera{err: errors.New("permission denied")})
	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.False(t, s.Active())
}

func TestScanIsExclusiveAndClosable(t *testing.T) {
	stream := &fakeStream{block: true}
	camera := &fakeCamera{stream: stream, opened: make(chan struct{})}
	s := New(camera)

	result := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		result <- err
	}()
	<-camera.opened

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	s.Close()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.True(t, stream.isClosed())
	assert.False(t, s.Active())
}

// slowCamera blocks in Open until its context is cancelled.
type slowCamera struct{ opening chan struct{} }

func (c *slowCamera) Open(ctx context.Context) (Stream, error) {
	close(c.opening)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestScanClosedWhileOpening(t *testing.T) {
	camera := &slowCamera{opening: make(chan struct{})}
	s := New(camera)

	result := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		result <- err
	}()
	<-camera.opening
	s.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
		assert.NotErrorIs(t, err, ErrCameraUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.False(t, s.Active())
}

func TestScanStopsOnContextCancel(t *testing.T) {
	stream := &fakeStream{block: true}
	camera := &fakeCamera{stream: stream, opened: make(chan struct{})}
	s := New(camera)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx)
		result <- err
	}()
	<-camera.opened
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.True(t, stream.isClosed())
}

func TestScanDebounce(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	stream := &fakeStream{frames: []image.Image{qrFrame(t, "first"), qrFrame(t, "second")}}
	s := New(&fakeCamera{stream: stream}, WithClock(c.Now), WithCooldown(time.Second))

	text, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	_, err = s.Scan(context.Background())
	assert.ErrorIs(t, err, ErrCoolingDown)

	c.now = c.now.Add(2 * time.Second)
	text, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", text)
}

func TestFileCamera(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, qrFrame(t, "https://shop.test/vendeur?order=KOK-7")))
	require.NoError(t, f.Close())

	text, err := New(FileCamera{Paths: []string{path}}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/vendeur?order=KOK-7", text)

	_, err = New(FileCamera{Paths: []string{filepath.Join(dir, "missing.png")}}).Scan(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}

func TestQRDecoderNoCode(t *testing.T) {
	_, err := QRDecoder{}.Decode(blankFrame())
	assert.ErrorIs(t, err, ErrNoCode)
}
