// Package zip bundles in-memory files into a zip archive.
package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Asset is one archive entry.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// ErrDuplicateName is returned when two assets share a filename.
var ErrDuplicateName = errors.New("zip: duplicate filename")

// ArchiveAssets writes assets in order into a deflated archive. Already
// compressed image payloads are stored without recompression.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if asset.Filename == "" {
			return nil, errors.New("zip: filename is required")
		}
		if _, dup := seen[asset.Filename]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, asset.Filename)
		}
		seen[asset.Filename] = struct{}{}

		hdr := &zip.FileHeader{Name: asset.Filename, Method: methodFor(asset.MIME)}
		if !asset.Modified.IsZero() {
			hdr.Modified = asset.Modified
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func methodFor(mime string) uint16 {
	switch mime {
	case "image/jpeg", "image/webp", "image/png":
		return zip.Store
	default:
		return zip.Deflate
	}
}
