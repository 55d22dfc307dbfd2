package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // provider outputs are jpeg or png
	"io"
	"net/http"
	"time"
)

// Quality tiers by source size. Larger renders get squeezed harder so storage
// quota stays meaningful across plans.
const (
	qualityLow    = 70
	qualityMedium = 80
	qualityHigh   = 90

	lowTierKB    = 15000
	mediumTierKB = 10000
)

// QualityForSize selects the JPEG quality tier for a render of the given size.
func QualityForSize(sizeBytes int64) int {
	sizeKB := sizeBytes / 1024
	switch {
	case sizeKB > lowTierKB:
		return qualityLow
	case sizeKB > mediumTierKB:
		return qualityMedium
	default:
		return qualityHigh
	}
}

// Recompress decodes an image and re-encodes it as JPEG at the given quality.
func Recompress(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode render: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode render: %w", err)
	}

	return buf.Bytes(), nil
}

// Fetcher downloads provider output images.
type Fetcher struct {
	HTTPClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image fetch returned empty body")
	}

	return data, nil
}
