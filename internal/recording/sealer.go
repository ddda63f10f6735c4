package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ContentType is the media type of sealed capture artifacts.
const ContentType = "video/webm"

// Sealer turns a finished capture buffer into a durable artifact reference.
type Sealer interface {
	Seal(ctx context.Context, incidentID, contentType string, data []byte) (string, error)
}

// FileSealer writes artifacts under Dir and returns file:// URLs.
type FileSealer struct {
	Dir string
	now func() time.Time
}

func NewFileSealer(dir string) *FileSealer {
	return &FileSealer{Dir: dir, now: time.Now}
}

func (f *FileSealer) Seal(_ context.Context, incidentID, _ string, data []byte) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return "", err
	}
	name := fmt.Sprintf("incident-%s-%d.webm", incidentID, f.now().Unix())
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return "file://" + path, nil
}

// FallbackSealer tries each sealer in order and returns the first success.
type FallbackSealer []Sealer

func (fs FallbackSealer) Seal(ctx context.Context, incidentID, contentType string, data []byte) (string, error) {
	var errs []error
	for _, s := range fs {
		if s == nil {
			continue
		}
		ref, err := s.Seal(ctx, incidentID, contentType, data)
		if err == nil {
			return ref, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no sealer configured")
	}
	return "", errors.Join(errs...)
}
