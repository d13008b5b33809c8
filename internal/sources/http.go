package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const maxBodyBytes = 256 << 20

const userAgent = "health-geo-ingest/1.0"

// do sends req and returns the body of a 2xx response. Transport failures and other statuses
// are ErrNetwork.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrNetwork, req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	return body, nil
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrParse, err)
	}
	return do(client, req)
}

func isHTTP(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// readLocation loads an http(s) URL, an s3://bucket/key object or a local file.
func readLocation(ctx context.Context, client *http.Client, objects ObjectGetter, loc string) ([]byte, error) {
	switch {
	case loc == "":
		return nil, fmt.Errorf("%w: no location configured", ErrNetwork)
	case isHTTP(loc):
		return get(ctx, client, loc)
	case strings.HasPrefix(loc, "s3://"):
		return readS3(ctx, objects, loc)
	}
	raw, err := os.ReadFile(strings.TrimPrefix(loc, "file://"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return raw, nil
}
