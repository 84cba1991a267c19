package transcode

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"polaris-api/internal/gemini"
	"polaris-api/internal/shared"
)

var dataURIRe = regexp.MustCompile(`^data:(.*?)(;base64)?,(.*)$`)

// ImageFetcher resolves image_url content parts into inline upstream parts.
// Remote URLs are fetched and base64 encoded, data URIs are decoded locally.
type ImageFetcher struct {
	Client *http.Client
}

func NewImageFetcher() *ImageFetcher {
	return &ImageFetcher{
		Client: &http.Client{Timeout: shared.DefaultHTTPTimeout},
	}
}

func (f *ImageFetcher) Resolve(ctx context.Context, url string) (*gemini.Part, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return f.fetch(ctx, url)
	}

	match := dataURIRe.FindStringSubmatch(url)
	if match == nil {
		return nil, &shared.RequestError{
			StatusCode: 400,
			Err:        fmt.Errorf("invalid image data: %s", truncate(url, 64)),
		}
	}

	return &gemini.Part{InlineData: &gemini.InlineData{
		MimeType: match[1],
		Data:     match[3],
	}}, nil
}

func (f *ImageFetcher) fetch(ctx context.Context, url string) (*gemini.Part, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &shared.RequestError{StatusCode: 400, Err: fmt.Errorf("error fetching image: %w", err)}
	}

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, &shared.RequestError{StatusCode: 500, Err: fmt.Errorf("error fetching image: %w", err)}
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &shared.RequestError{
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("error fetching image: %s (%s)", res.Status, url),
		}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &shared.RequestError{StatusCode: 500, Err: fmt.Errorf("error fetching image: %w", err)}
	}

	return &gemini.Part{InlineData: &gemini.InlineData{
		MimeType: res.Header.Get("Content-Type"),
		Data:     base64.StdEncoding.EncodeToString(raw),
	}}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
