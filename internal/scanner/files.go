package scanner

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
)

// FileCamera replays image files as camera frames, in order.
type FileCamera struct {
	Paths []string
}

func (c FileCamera) Open(_ context.Context) (Stream, error) {
	if len(c.Paths) == 0 {
		return nil, fmt.Errorf("no image given")
	}
	for _, p := range c.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
	}
	return &fileStream{paths: c.Paths}, nil
}

type fileStream struct {
	paths []string
	next  int
}

func (s *fileStream) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (s *fileStream) Close() error {
	s.next = len(s.paths)
	return nil
}
