package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/service"
)

// OCRSpaceClient implements service.OCRClient against the OCR.Space API.
// It accepts PDFs and images directly, so no local page rendering is needed.
type OCRSpaceClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// OCRSpaceConfig configures the OCR.Space client.
type OCRSpaceConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

const (
	defaultOCREndpoint = "https://api.ocr.space/parse/image"
	// defaultOCRConfidence is used when the engine reports no word-level
	// confidence for a page.
	defaultOCRConfidence = 0.66
)

// NewOCRSpaceClient creates an OCR.Space client.
func NewOCRSpaceClient(cfg OCRSpaceConfig) (*OCRSpaceClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OCR API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOCREndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OCRSpaceClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type ocrWord struct {
	Confidence float64 `json:"Confidence"`
}

type ocrLine struct {
	Words []ocrWord `json:"Words"`
}

type ocrSpaceResponse struct {
	ErrorMessage          any  `json:"ErrorMessage"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	ParsedResults         []struct {
		ParsedText  string `json:"ParsedText"`
		TextOverlay struct {
			Lines []ocrLine `json:"Lines"`
		} `json:"TextOverlay"`
	} `json:"ParsedResults"`
}

// Recognize sends the document bytes for optical recognition and returns the
// combined page text with the engine-reported confidence.
func (c *OCRSpaceClient) Recognize(ctx context.Context, imageBytes []byte) (service.OCRResult, error) {
	mimeType := "image/png"
	fileType := "PNG"
	switch {
	case strings.HasPrefix(string(imageBytes[:min(4, len(imageBytes))]), "%PDF"):
		mimeType, fileType = "application/pdf", "PDF"
	case len(imageBytes) > 2 && imageBytes[0] == 0xFF && imageBytes[1] == 0xD8:
		mimeType, fileType = "image/jpeg", "JPG"
	}

	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("base64Image", fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageBytes)))
	form.Set("language", "eng")
	form.Set("filetype", fileType)
	form.Set("OCREngine", "2")
	form.Set("detectOrientation", "true")
	form.Set("scale", "true")
	form.Set("isOverlayRequired", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return service.OCRResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return service.OCRResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.OCRResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return service.OCRResult{}, fmt.Errorf("ocr API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed ocrSpaceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return service.OCRResult{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.IsErroredOnProcessing || len(parsed.ParsedResults) == 0 {
		return service.OCRResult{}, fmt.Errorf("ocr engine reported failure: %v", parsed.ErrorMessage)
	}

	var textBuilder strings.Builder
	var confidenceSum float64
	var pages int
	for _, page := range parsed.ParsedResults {
		if page.ParsedText == "" {
			continue
		}
		textBuilder.WriteString(page.ParsedText)
		textBuilder.WriteString("\n")
		confidenceSum += pageConfidence(page.TextOverlay.Lines)
		pages++
	}

	if pages == 0 {
		return service.OCRResult{}, fmt.Errorf("no text found in document")
	}

	return service.OCRResult{
		Text:       strings.TrimSpace(textBuilder.String()),
		Confidence: confidenceSum / float64(pages),
	}, nil
}

func pageConfidence(lines []ocrLine) float64 {
	var sum float64
	var words int
	for _, line := range lines {
		for _, word := range line.Words {
			sum += word.Confidence
			words++
		}
	}
	if words == 0 {
		return defaultOCRConfidence
	}
	// The engine reports 0-100.
	return sum / float64(words) / 100.0
}
