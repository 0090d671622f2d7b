// Package openai calls the OpenAI image edit endpoint to reframe a source
// image into a target canvas.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/internal/providers"
)

// ProviderName identifies this backend in logs, errors and metrics.
const ProviderName = "openai"

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-image-1"
	defaultTimeout = 120 * time.Second
	maxErrorBody   = 64 << 10
)

// Options controls how the OpenAI client is configured.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	// MaxImageBytes caps images fetched from result URLs.
	MaxImageBytes int64
}

// Client implements providers.Generator over POST /images/edits.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	organization string
	httpClient   *http.Client
	logger       infra.Logger
	maxImage     int64
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   client,
		logger:       logger,
		maxImage:     opts.MaxImageBytes,
	}, nil
}

func (c *Client) Name() string { return ProviderName }

// Model returns the default model used when a request does not name one.
func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, req providers.Request) (imagedata.Image, error) {
	if len(req.Source.Data) == 0 {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: imagedata.ErrEmpty}
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, contentType, err := c.buildForm(req, model)
	if err != nil {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", body)
	if err != nil {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return imagedata.Image{}, providers.Unavailable(ProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return imagedata.Image{}, decodeError(resp)
	}

	var out imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return imagedata.Image{}, providers.Malformed(ProviderName, fmt.Errorf("decode response: %w", err))
	}

	img, err := c.extractImage(ctx, out)
	if err != nil {
		return imagedata.Image{}, err
	}

	c.logger.Debug().
		Str("provider", ProviderName).
		Str("model", model).
		Str("format", req.Target.Key.String()).
		Str("size", img.Size()).
		Dur("latency", time.Since(started)).
		Msg("openai: image edited")
	return img, nil
}

func (c *Client) buildForm(req providers.Request, model string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mime := req.Source.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="image%s"`, extensionFor(mime)))
	header.Set("Content-Type", mime)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Source.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", model},
		{"prompt", req.Prompt},
		{"size", req.Target.ProviderSize},
		{"n", "1"},
	}
	if strings.HasPrefix(model, "dall-e") {
		fields = append(fields, [2]string{"response_format", "b64_json"})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) extractImage(ctx context.Context, out imagesResponse) (imagedata.Image, error) {
	if len(out.Data) == 0 {
		return imagedata.Image{}, providers.Malformed(ProviderName, nil)
	}
	first := out.Data[0]
	var raw []byte
	switch {
	case first.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return imagedata.Image{}, providers.Malformed(ProviderName, fmt.Errorf("decode b64_json: %w", err))
		}
		raw = data
	case first.URL != "":
		data, err := c.download(ctx, first.URL)
		if err != nil {
			return imagedata.Image{}, err
		}
		raw = data
	default:
		return imagedata.Image{}, providers.Malformed(ProviderName, nil)
	}
	img, err := imagedata.FromBytes(raw, "image/png")
	if err != nil {
		return imagedata.Image{}, providers.Malformed(ProviderName, err)
	}
	return img, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, providers.Malformed(ProviderName, fmt.Errorf("build download request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, providers.Unavailable(ProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, providers.FromStatus(ProviderName, resp.StatusCode, "", "download generated image")
	}
	data, err := providers.ReadImage(resp.Body, c.maxImage)
	if errors.Is(err, providers.ErrImageTooLarge) {
		return nil, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: err}
	}
	if err != nil {
		return nil, providers.Unavailable(ProviderName, fmt.Errorf("read download: %w", err))
	}
	return data, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr errorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		code, _ := apiErr.Error.Code.(string)
		if code == "" {
			code = apiErr.Error.Type
		}
		return providers.FromStatus(ProviderName, resp.StatusCode, code, apiErr.Error.Message)
	}
	return providers.FromStatus(ProviderName, resp.StatusCode, "", string(data))
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ providers.Generator = (*Client)(nil)
