package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestArchiveAssetsRoundTrip(t *testing.T) {
	archive, err := ArchiveAssets([]Asset{
		{Filename: "a.png", MIME: "image/png", Data: []byte("png-bytes")},
		{Filename: "notes.txt", MIME: "text/plain", Data: []byte("hello hello hello")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	want := map[string]string{"a.png": "png-bytes", "notes.txt": "hello hello hello"}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want[f.Name] {
			t.Fatalf("entry %s = %q", f.Name, data)
		}
	}
	if zr.File[0].Method != zip.Store || zr.File[1].Method != zip.Deflate {
		t.Fatalf("unexpected methods %d %d", zr.File[0].Method, zr.File[1].Method)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{{Filename: "x.png"}, {Filename: "x.png"}})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	archive, err := ArchiveAssets(nil)
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil || len(zr.File) != 0 {
		t.Fatalf("expected empty archive, got %v %v", err, zr)
	}
}
