package tts_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-humphrey/pkg/tts"
)

func readAll(t *testing.T, s tts.AudioStream) []byte {
	t.Helper()
	defer s.Close()
	var out []byte
	for {
		chunk, err := s.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if chunk == nil {
			return out
		}
		if len(chunk)%2 != 0 {
			t.Fatalf("chunk of %d bytes splits a sample", len(chunk))
		}
		out = append(out, chunk...)
	}
}

func TestElevenLabs(t *testing.T) {
	pcm := bytes.Repeat([]byte{1, 2}, 3000)
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`)
			return
		}
		if r.URL.Path == "/v1/user" {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		// first call is rate limited to exercise the retry path
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/97U3B7htAA7UsCIDST8b") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_16000" {
			t.Errorf("unexpected output_format %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model_id"] != "eleven_turbo_v2_5" || body["text"] != "Quite." {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(
		tts.WithAPIKey("good"),
		tts.WithBaseURL(srv.URL+"/v1"),
		tts.WithVoice("humphrey"),
		tts.WithOutputFormat(tts.EncodingPCM16),
		tts.WithRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := p.Stream(context.Background(), "Quite.")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if stream.Format().SampleRate != 16000 {
		t.Errorf("unexpected rate %d", stream.Format().SampleRate)
	}
	if got := readAll(t, stream); !bytes.Equal(got, pcm) {
		t.Errorf("got %d bytes, want %d", len(got), len(pcm))
	}
	if attempts.Load() != 2 {
		t.Errorf("expected one retry, got %d attempts", attempts.Load())
	}

	if err := p.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}

	bad, _ := tts.NewElevenLabs(tts.WithAPIKey("bad"), tts.WithBaseURL(srv.URL+"/v1"), tts.WithVoice("x"))
	_, err = bad.Synthesize(context.Background(), "hi")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() || apiErr.Message != "Invalid API key" {
		t.Errorf("expected unauthorized APIError, got %v", err)
	}
}

func TestSpeechmatics(t *testing.T) {
	pcm := bytes.Repeat([]byte{0, 1}, 1600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sm-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":401,"error":"Permission Denied"}`)
			return
		}
		if r.URL.Path != "/generate/sarah" || r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("unexpected url %s", r.URL)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] == "" {
			t.Error("missing text")
		}
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	p, err := tts.NewSpeechmatics(tts.WithAPIKey("sm-key"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Synthesize(context.Background(), "Good evening.")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Format.SampleRate != 16000 || !bytes.Equal(res.Audio, pcm) {
		t.Errorf("unexpected result: rate %d, %d bytes", res.Format.SampleRate, len(res.Audio))
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", res.Duration)
	}

	stream, err := p.Stream(context.Background(), "Good evening.")
	if err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, stream); len(got) != len(pcm) {
		t.Errorf("streamed %d bytes", len(got))
	}

	if err := p.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}

	bad, _ := tts.NewSpeechmatics(tts.WithAPIKey("nope"), tts.WithBaseURL(srv.URL))
	err = bad.Health(context.Background())
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Permission Denied" {
		t.Errorf("expected APIError, got %v", err)
	}
}

func TestSpeechmaticsHealthDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"overloaded"}`)
	}))
	defer srv.Close()

	p, err := tts.NewSpeechmatics(
		tts.WithAPIKey("sm-key"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Health(context.Background())
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 APIError, got %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("expected one request, got %d", n)
	}

	// synthesis still retries
	attempts.Store(0)
	if _, err := p.Synthesize(context.Background(), "Hello."); err == nil {
		t.Error("expected synthesis to fail")
	}
	if n := attempts.Load(); n != 4 {
		t.Errorf("expected four synthesis attempts, got %d", n)
	}
}

func wav(pcm []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	b.Write(make([]byte, 16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func TestGoogle(t *testing.T) {
	pcm := bytes.Repeat([]byte{5, 0}, 2400)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("key") != "g-key" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid"}}`)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/text:synthesize"):
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			voice := req["voice"].(map[string]any)
			if voice["name"] != "en-GB-Neural2-B" || voice["languageCode"] != "en-GB" {
				t.Errorf("unexpected voice %v", voice)
			}
			cfg := req["audioConfig"].(map[string]any)
			if cfg["audioEncoding"] != "LINEAR16" {
				t.Errorf("unexpected encoding %v", cfg["audioEncoding"])
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"audioContent": base64.StdEncoding.EncodeToString(wav(pcm)),
			})
		case strings.HasSuffix(r.URL.Path, "/voices"):
			_, _ = io.WriteString(w, `{"voices":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx, tts.WithAPIKey("g-key"), tts.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Synthesize(ctx, "Tally ho.")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.Equal(res.Audio, pcm) {
		t.Errorf("WAV header not stripped: got %d bytes, want %d", len(res.Audio), len(pcm))
	}
	if res.Format.SampleRate != 24000 {
		t.Errorf("unexpected rate %d", res.Format.SampleRate)
	}

	stream, err := p.Stream(ctx, "Tally ho.")
	if err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, stream); !bytes.Equal(got, pcm) {
		t.Errorf("streamed %d bytes", len(got))
	}

	if err := p.Health(ctx); err != nil {
		t.Errorf("health: %v", err)
	}

	bad, err := tts.NewGoogle(ctx, tts.WithAPIKey("wrong"), tts.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = bad.Synthesize(ctx, "x")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 APIError, got %v", err)
	}
}
