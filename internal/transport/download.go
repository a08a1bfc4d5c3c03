package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// progressInterval is how many bytes are copied between progress
// callback invocations.
const progressInterval = 8 * 1024

// ErrFileTooLarge is returned when a download exceeds the caller's byte
// ceiling. Exceeding the ceiling is terminal: the partial content is
// discarded and the transfer is not retried.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// NetworkError wraps a transport-level failure (connection refused,
// reset, timeout). Network errors are the only retryable download
// failure kind.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusError reports a non-success HTTP response from the file server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %d", e.Code)
}

// ProgressFunc receives (totalBytes, bytesSoFar) at a fixed byte
// cadence during a download. Total is 0 when the server does not report
// a content length. Implementations must return quickly; the download
// goroutine calls them inline.
type ProgressFunc func(total, soFar int64)

// Downloader fetches remote attachment bytes over HTTP.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a Downloader with a default HTTP client.
func NewDownloader() *Downloader {
	return &Downloader{client: &http.Client{Timeout: 5 * time.Minute}}
}

// NewDownloaderWithClient creates a Downloader using the given client.
func NewDownloaderWithClient(client *http.Client) *Downloader {
	return &Downloader{client: client}
}

// DownloadFile streams the resource at url into dest, enforcing
// maxBytes as a hard ceiling. Progress is reported through progress
// when non-nil. Transport failures are wrapped in NetworkError;
// non-2xx responses surface as StatusError; exceeding maxBytes returns
// ErrFileTooLarge.
func (d *Downloader) DownloadFile(ctx context.Context, dest *os.File, url string, maxBytes int64, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}

	total := resp.ContentLength
	if total > maxBytes {
		return ErrFileTooLarge
	}
	if total < 0 {
		total = 0
	}

	var written int64
	buf := make([]byte, progressInterval)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if written+int64(n) > maxBytes {
				return ErrFileTooLarge
			}
			if _, err := dest.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write to destination: %w", err)
			}
			written += int64(n)
			if progress != nil {
				progress(total, written)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &NetworkError{Err: readErr}
		}
	}

	return nil
}
