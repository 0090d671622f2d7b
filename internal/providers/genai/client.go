// Package genai talks to the Gemini generateContent endpoint, both for
// reframing a source image and for creating a master image from text.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/internal/providers"
)

// ProviderName identifies this backend in logs, errors and metrics.
const ProviderName = "gemini"

const maxErrorBody = 64 << 10

// MasterPromptPrefix is prepended to text descriptions for master images.
const MasterPromptPrefix = "Generate a high-quality 1:1 square image (1024x1024 pixels) based on this description: "

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MasterModel string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	// MaxImageBytes caps images fetched through fileData URIs.
	MaxImageBytes int64
}

// Client implements providers.Generator for Gemini image models.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	masterModel string
	httpClient  *http.Client
	logger      infra.Logger
	maxImage    int64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client. An API key is required; callers that
// want an offline generator use the synthetic package instead.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	masterModel := strings.TrimSpace(opts.MasterModel)
	if masterModel == "" {
		masterModel = model
	}

	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		masterModel: masterModel,
		httpClient:  client,
		logger:      logger,
		maxImage:    opts.MaxImageBytes,
	}, nil
}

func (c *Client) Name() string { return ProviderName }

// Model returns the default image model identifier.
func (c *Client) Model() string { return c.model }

// Generate reframes req.Source following req.Prompt.
func (c *Client) Generate(ctx context.Context, req providers.Request) (imagedata.Image, error) {
	if len(req.Source.Data) == 0 {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: imagedata.ErrEmpty}
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	mime := req.Source.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Source.Data)}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &geminiImageConfig{AspectRatio: req.Target.Key.String()},
		},
	}

	started := time.Now()
	img, err := c.generate(ctx, model, payload)
	if err != nil {
		return imagedata.Image{}, err
	}
	c.logger.Debug().
		Str("provider", ProviderName).
		Str("model", model).
		Str("format", req.Target.Key.String()).
		Str("size", img.Size()).
		Dur("latency", time.Since(started)).
		Msg("genai: image generated")
	return img, nil
}

// GenerateMaster creates a square master image from a text description.
func (c *Client) GenerateMaster(ctx context.Context, description string) (imagedata.Image, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: errors.New("prompt is empty")}
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: MasterPromptPrefix + description}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &geminiImageConfig{AspectRatio: "1:1"},
		},
	}
	return c.generate(ctx, c.masterModel, payload)
}

func (c *Client) generate(ctx context.Context, model string, payload geminiGenerateContentRequest) (imagedata.Image, error) {
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))

	var response geminiGenerateContentResponse
	err := c.invokeGemini(ctx, path, payload, &response)
	if err != nil && payload.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		// Older model revisions reject imageConfig; the prompt still carries the ratio.
		payload.GenerationConfig.ImageConfig = nil
		err = c.invokeGemini(ctx, path, payload, &response)
	}
	if err != nil {
		return imagedata.Image{}, err
	}

	if len(response.Candidates) == 0 && response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return imagedata.Image{}, &providers.Error{
			Provider: ProviderName,
			Kind:     providers.KindTerminal,
			Status:   http.StatusOK,
			Code:     response.PromptFeedback.BlockReason,
			Err:      errors.New("prompt blocked"),
		}
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodeInlineAsset(ctx, part)
			if err != nil {
				return imagedata.Image{}, err
			}
			if len(asset.Data) == 0 || !strings.HasPrefix(asset.Format, "image/") {
				continue
			}
			img, err := imagedata.FromBytes(asset.Data, asset.Format)
			if err != nil {
				return imagedata.Image{}, providers.Malformed(ProviderName, err)
			}
			return img, nil
		}
	}
	return imagedata.Image{}, providers.Malformed(ProviderName, errors.New("no image generated"))
}

type inlineAsset struct {
	Data   []byte
	Format string
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Unavailable(ProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return providers.FromStatus(ProviderName, resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return providers.FromStatus(ProviderName, resp.StatusCode, "", string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providers.Malformed(ProviderName, fmt.Errorf("decode gemini response: %w", err))
	}
	return nil
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) (inlineAsset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return inlineAsset{}, providers.Malformed(ProviderName, fmt.Errorf("decode inline data: %w", err))
		}
		return inlineAsset{Data: data, Format: firstNonEmpty(part.InlineData.MimeType, http.DetectContentType(data))}, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return inlineAsset{}, err
		}
		return inlineAsset{Data: data, Format: firstNonEmpty(part.FileData.MimeType, mime)}, nil
	}

	return inlineAsset{}, nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", providers.Malformed(ProviderName, fmt.Errorf("create download request: %w", err))
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", providers.Unavailable(ProviderName, fmt.Errorf("download file: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", providers.FromStatus(ProviderName, resp.StatusCode, "", string(data))
	}

	blob, err := providers.ReadImage(resp.Body, c.maxImage)
	if errors.Is(err, providers.ErrImageTooLarge) {
		return nil, "", &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: err}
	}
	if err != nil {
		return nil, "", providers.Unavailable(ProviderName, fmt.Errorf("read file: %w", err))
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func isUnknownFieldError(err error, field string) bool {
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Status != http.StatusBadRequest {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ providers.Generator = (*Client)(nil)
