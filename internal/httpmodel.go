package internal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	_ ImageEmbedder = (*HTTPModel)(nil)
	_ TextEmbedder  = (*HTTPModel)(nil)
)

// HTTPModel calls a CLIP model server over JSON.
//
// Images are posted to {base}/v1/embed/image as base64 RGBA; token sequences
// to {base}/v1/embed/text. Both endpoints answer {"embeddings": [[...], ...]}.
type HTTPModel struct {
	baseURL    string
	imageModel string
	textModel  string
	inputSize  int
	device     Device
	normalize  bool
	client     *http.Client
	logger     *slog.Logger
}

type HTTPModelConfig struct {
	BaseURL    string
	ImageModel string
	TextModel  string
	InputSize  int

	// Device is passed through to the server as an accelerator hint.
	Device Device

	// Normalize rescales returned vectors to unit length.
	Normalize bool

	// Timeout for each request (default: 30s).
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type imagePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	RGBA   string `json:"rgba"`
}

type embedImageRequest struct {
	Model  string         `json:"model,omitempty"`
	Device Device         `json:"device,omitempty"`
	Images []imagePayload `json:"images"`
}

type embedTextRequest struct {
	Model  string    `json:"model,omitempty"`
	Device Device    `json:"device,omitempty"`
	Tokens [][]int32 `json:"tokens"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewHTTPModel(cfg HTTPModelConfig) (*HTTPModel, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrNoModel)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	size := cfg.InputSize
	if size <= 0 {
		size = DefaultInputSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPModel{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		imageModel: cfg.ImageModel,
		textModel:  cfg.TextModel,
		inputSize:  size,
		device:     cfg.Device,
		normalize:  cfg.Normalize,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (m *HTTPModel) InputSize() int {
	return m.inputSize
}

func (m *HTTPModel) EmbedImages(ctx context.Context, images []*image.RGBA) ([]Embedding, error) {
	if len(images) == 0 {
		return []Embedding{}, nil
	}

	req := embedImageRequest{Model: m.imageModel, Device: m.device, Images: make([]imagePayload, len(images))}
	for i, img := range images {
		b := img.Bounds()
		req.Images[i] = imagePayload{
			Width:  b.Dx(),
			Height: b.Dy(),
			RGBA:   base64.StdEncoding.EncodeToString(packRGBA(img)),
		}
	}

	vecs, err := m.post(ctx, "/v1/embed/image", req)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(images) {
		return nil, fmt.Errorf("model returned %d embeddings for %d images", len(vecs), len(images))
	}

	out := make([]Embedding, len(vecs))
	for i, v := range vecs {
		out[i] = m.embedding(v)
	}
	return out, nil
}

func (m *HTTPModel) EmbedTokens(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	vecs, err := m.post(ctx, "/v1/embed/text", embedTextRequest{
		Model:  m.textModel,
		Device: m.device,
		Tokens: [][]int32{tokens},
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("model returned %d embeddings for 1 query", len(vecs))
	}
	return m.embedding(vecs[0]), nil
}

func (m *HTTPModel) embedding(v []float32) Embedding {
	e := NewEmbedding(v)
	if m.normalize {
		return e.Normalized()
	}
	return e
}

func (m *HTTPModel) post(ctx context.Context, path string, body any) ([][]float32, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("call model: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	m.logger.Debug("model call", "path", path, "count", len(out.Embeddings), "elapsed", time.Since(start))
	return out.Embeddings, nil
}

// packRGBA returns the image's pixels without row padding.
func packRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	rowLen := 4 * b.Dx()
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*b.Dy()]
	}

	out := make([]byte, 0, rowLen*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+rowLen]...)
	}
	return out
}
