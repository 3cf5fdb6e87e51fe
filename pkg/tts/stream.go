package tts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// chunkBytes is the read size for streamed audio.
const chunkBytes = 4096

// httpStream wraps an HTTP response body as AudioStream.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [chunkBytes]byte
	odd    []byte // carries a split sample to the next read
}

// Read returns the next audio chunk. Chunks always hold whole samples.
func (s *httpStream) Read() ([]byte, error) {
	for {
		n, err := s.body.Read(s.buf[:])
		if n > 0 {
			chunk := append(s.odd, s.buf[:n]...)
			s.odd = nil
			if len(chunk)%2 == 1 {
				s.odd = []byte{chunk[len(chunk)-1]}
				chunk = chunk[:len(chunk)-1]
			}
			if len(chunk) > 0 {
				return chunk, nil
			}
		}
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *httpStream) Close() error {
	return s.body.Close()
}

func (s *httpStream) Format() AudioFormat {
	return s.format
}

// bufferStream serves an in-memory buffer as AudioStream.
type bufferStream struct {
	data   []byte
	format AudioFormat
	pos    int
	closed bool
}

func newBufferStream(data []byte, format AudioFormat) *bufferStream {
	return &bufferStream{data: data, format: format}
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos >= len(s.data) {
		return nil, nil
	}
	end := min(s.pos+chunkBytes, len(s.data))
	chunk := s.data[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *bufferStream) Close() error {
	s.closed = true
	return nil
}

func (s *bufferStream) Format() AudioFormat {
	return s.format
}

// retrier performs HTTP requests, retrying rate limits and server errors.
type retrier struct {
	provider   string
	maxRetries int
	delay      time.Duration
	logger     *slog.Logger
	parseError func(*http.Response) error
}

// do builds a fresh request per attempt so bodies are never reused.
func (r *retrier) do(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.delay * time.Duration(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, WrapError(r.provider, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(r.provider, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = r.parseError(resp)
			resp.Body.Close()
			r.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, r.parseError(resp)
		}
		return resp, nil
	}

	return nil, lastErr
}
