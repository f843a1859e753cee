// Package embedding talks to the face embedding server that turns a
// photograph into a face vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const defaultEmbeddingURL = "http://localhost:5000"

var (
	// ErrNoFaceDetected is returned when the server finds no face in the image.
	ErrNoFaceDetected = errors.New("no face detected in image")
	// ErrEmptyEmbedding is returned when the server reports a face without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
	// ErrInvalidImage is returned when the bytes cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image data")
)

// ProviderError wraps transport and protocol failures of the embedding server.
type ProviderError struct {
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider turns image bytes into a face embedding.
type Provider interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL      string
	dim          int
	maxImageSize int
	client       *http.Client
}

// Options configures a Client. Zero values keep the defaults.
type Options struct {
	Dim          int // expected vector length, 0 accepts any
	MaxImageSize int // longest side sent to the server, 0 disables downscaling
	Timeout      time.Duration
}

// NewClient creates a new embedding client
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		dim:          opts.Dim,
		maxImageSize: opts.MaxImageSize,
		client:       &http.Client{Timeout: opts.Timeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as the "file" part, with a Content-Type
// header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := DetectMIMEType(imageData)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face`+extensionFor(mimeType)+`"`)
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrNoFaceDetected
	case resp.StatusCode != http.StatusOK:
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	if c.maxImageSize > 0 {
		resized, err := ResizeImage(imageData, c.maxImageSize)
		if err != nil {
			return nil, err
		}
		imageData = resized
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, &ProviderError{StatusCode: http.StatusOK, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return &faceResp, nil
}

// Embed returns the embedding of the most confidently detected face.
func (c *Client) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	faceResp, err := c.ComputeFaceEmbeddings(ctx, imageData)
	if err != nil {
		return nil, err
	}

	face, ok := bestFace(faceResp.Faces)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	if len(face.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if c.dim > 0 && len(face.Embedding) != c.dim {
		return nil, &ProviderError{
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("embedding has %d dimensions, expected %d", len(face.Embedding), c.dim),
		}
	}

	return face.Embedding, nil
}

// bestFace picks the detection with the highest score; the first wins ties.
func bestFace(faces []FaceDetection) (FaceDetection, bool) {
	if len(faces) == 0 {
		return FaceDetection{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.DetScore > best.DetScore {
			best = f
		}
	}
	return best, true
}
