// Package history keeps a short, newest-first record of past generations per
// client.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/orchestrator"
)

// DefaultLimit is how many entries are kept per client.
const DefaultLimit = 10

// ThumbnailSize bounds the longer side of stored thumbnails.
const ThumbnailSize = 160

// ErrClientRequired is returned when no client id is supplied.
var ErrClientRequired = errors.New("history: client id is required")

// Entry is one remembered generation.
type Entry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Quality   string       `json:"mode"`
	Formats   []format.Key `json:"formats"`
	Failed    []format.Key `json:"failed"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Sink accepts entries and lists them newest first.
type Sink interface {
	Append(ctx context.Context, clientID string, e Entry) error
	List(ctx context.Context, clientID string) ([]Entry, error)
	Clear(ctx context.Context, clientID string) error
}

// NewEntry summarises res. The thumbnail is taken from the first successful
// format in request order; a thumbnail failure leaves it empty.
func NewEntry(sessionID string, res orchestrator.Result, createdAt time.Time) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Quality:   string(res.Quality),
		Formats:   []format.Key{},
		Failed:    []format.Key{},
		CreatedAt: createdAt.UTC(),
	}
	for _, k := range res.Requested {
		img, ok := res.Images[k]
		if !ok {
			e.Failed = append(e.Failed, k)
			continue
		}
		e.Formats = append(e.Formats, k)
		if e.Thumbnail == "" {
			if thumb, err := Thumbnail(img, ThumbnailSize); err == nil {
				e.Thumbnail = thumb
			}
		}
	}
	return e
}

// Thumbnail downsizes img to fit within max x max and returns a JPEG data URI.
func Thumbnail(img imagedata.Image, max int) (string, error) {
	src, err := img.Decode()
	if err != nil {
		return "", err
	}
	small := imaging.Fit(src, max, max, imaging.Lanczos)
	bg := imaging.New(small.Bounds().Dx(), small.Bounds().Dy(), color.White)
	flat := imaging.Overlay(bg, small, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	thumb := imagedata.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}
	return thumb.DataURI(), nil
}

func normalizeClient(clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", ErrClientRequired
	}
	return clientID, nil
}

// MemoryStore is an in-process Sink.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]Entry
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit, entries: make(map[string][]Entry)}
}

func (m *MemoryStore) Append(_ context.Context, clientID string, e Entry) error {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]Entry{e}, m.entries[clientID]...)
	if len(list) > m.limit {
		list = list[:m.limit]
	}
	m.entries[clientID] = list
	return nil
}

func (m *MemoryStore) List(_ context.Context, clientID string) ([]Entry, error) {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.entries[clientID]...), nil
}

func (m *MemoryStore) Clear(_ context.Context, clientID string) error {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, clientID)
	m.mu.Unlock()
	return nil
}

var _ Sink = (*MemoryStore)(nil)
