package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/providers"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func sourceImage(t *testing.T) imagedata.Image {
	img, err := imagedata.FromBytes(pngBytes(t, 8, 8), "")
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	return img
}

func TestGenerateSendsMultipartEdit(t *testing.T) {
	out := pngBytes(t, 16, 24)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Organization"); got != "org-1" {
			t.Errorf("OpenAI-Organization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "gpt-image-1" || r.FormValue("size") != "1024x1536" {
			t.Errorf("unexpected fields model=%q size=%q", r.FormValue("model"), r.FormValue("size"))
		}
		if r.FormValue("prompt") != "reframe" {
			t.Errorf("prompt = %q", r.FormValue("prompt"))
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("image part: %v", err)
		} else {
			defer file.Close()
			if header.Filename != "image.png" {
				t.Errorf("filename = %q", header.Filename)
			}
			if data, _ := io.ReadAll(file); len(data) == 0 {
				t.Errorf("empty image part")
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(out)}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL, Organization: "org-1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	img, err := client.Generate(context.Background(), providers.Request{
		Source: sourceImage(t),
		Prompt: "reframe",
		Target: format.Lookup(format.Story),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.Width != 16 || img.Height != 24 || img.MIMEType != "image/png" {
		t.Fatalf("unexpected image %s %s", img.MIMEType, img.Size())
	}
}

func TestGenerateClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   providers.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, providers.KindTransient},
		{"overloaded", http.StatusServiceUnavailable, `upstream overloaded`, providers.KindTransient},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"Invalid image","type":"invalid_request_error","code":null}}`, providers.KindTerminal},
		{"no image", http.StatusOK, `{"data":[]}`, providers.KindMalformed},
		{"empty entry", http.StatusOK, `{"data":[{}]}`, providers.KindMalformed},
		{"not json", http.StatusOK, `<html>`, providers.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := NewClient(Options{APIKey: "k", BaseURL: srv.URL})
			_, err := client.Generate(context.Background(), providers.Request{
				Source: sourceImage(t),
				Prompt: "p",
				Target: format.Lookup(format.Square),
			})
			if got := providers.KindOf(err); got != tt.want {
				t.Fatalf("kind = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})},
	})
	_, err := client.Generate(context.Background(), providers.Request{Source: sourceImage(t), Target: format.Lookup(format.Square)})
	if providers.KindOf(err) != providers.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{APIKey: " "}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestGenerateRejectsOversizedDownload(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/images/edits", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": srv.URL + "/result.png"}},
		})
	})
	mux.HandleFunc("/result.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 4096))
	})

	client, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL, MaxImageBytes: 1024})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Generate(context.Background(), providers.Request{Source: sourceImage(t), Target: format.Lookup(format.Square)})
	if !errors.Is(err, providers.ErrImageTooLarge) {
		t.Fatalf("expected size limit error, got %v", err)
	}
	if providers.KindOf(err) != providers.KindTerminal {
		t.Fatalf("expected terminal kind, got %v", providers.KindOf(err))
	}
}
