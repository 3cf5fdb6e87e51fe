package runner_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-humphrey/internal/config"
	"github.com/teslashibe/go-humphrey/internal/runner"
	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/stt"
	"github.com/teslashibe/go-humphrey/pkg/tts"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

type fakeExample struct {
	openai config.OpenAI
	sttErr error
	builds atomic.Int32
	env    runner.Env
}

func (e *fakeExample) Name() string        { return "test-bot" }
func (e *fakeExample) Description() string { return "mock vendors" }

func (e *fakeExample) Sections() []config.Section {
	return []config.Section{&e.openai}
}

func (e *fakeExample) Build(_ context.Context, env runner.Env) (bot.Bot, error) {
	e.builds.Add(1)
	e.env = env

	recognizer := stt.NewMock()
	if e.sttErr != nil {
		recognizer = stt.WithError(e.sttErr)
	}
	return bot.Bot{
		Name:  e.Name(),
		Voice: voice.DefaultConfig(),
		Services: voice.Services{
			STT: recognizer,
			LLM: llm.NewMock("Hello."),
			TTS: tts.NewMock(),
		},
	}, nil
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvOpenAIKey, config.EnvSpeechmaticsKey, config.EnvElevenLabsKey, config.EnvGoogleKey} {
		t.Setenv(k, "")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

// start runs r in the background and waits for it to serve.
func start(t *testing.T, r *runner.Runner, opts runner.Options) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, opts) }()

	select {
	case <-r.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("run failed before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("runner not ready")
	}
	return cancel, errc
}

func stop(t *testing.T, cancel context.CancelFunc, errc <-chan error) error {
	t.Helper()
	cancel()
	select {
	case err := <-errc:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

func TestRunServesClientPage(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	ex := &fakeExample{}
	r := runner.New(ex)
	assert.Equal(t, runner.StateNotStarted, r.State())

	cancel, errc := start(t, r, runner.Options{Listener: localListener(t), Logger: quietLogger()})
	assert.Equal(t, runner.StateRunning, r.State())
	assert.NotEmpty(t, r.Addr())

	resp, err := http.Get(r.ClientURL())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "sk-test", ex.openai.APIKey)
	assert.NotNil(t, ex.env.HTTPClient)
	assert.Nil(t, ex.env.NetDial)

	require.NoError(t, stop(t, cancel, errc))
	assert.Equal(t, runner.StateStopped, r.State())
}

func TestRunFailsOnMissingKeysBeforeServing(t *testing.T) {
	clearKeys(t)

	ex := &fakeExample{}
	r := runner.New(ex)
	err := r.Run(context.Background(), runner.Options{Logger: quietLogger()})

	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
	assert.Contains(t, err.Error(), config.EnvOpenAIKey)
	assert.Zero(t, ex.builds.Load())
	assert.Equal(t, runner.StateNotStarted, r.State())
	assert.Empty(t, r.Addr())

	select {
	case <-r.Ready():
		t.Fatal("ready after config error")
	default:
	}
}

func TestRunPortInUse(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	busy := localListener(t)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	r := runner.New(&fakeExample{})
	err := r.Run(context.Background(), runner.Options{
		Host:   "127.0.0.1",
		Port:   port,
		Logger: quietLogger(),
	})

	var le *runner.ListenError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), le.Addr)
	assert.NotEqual(t, runner.StateRunning, r.State())
}

func TestRunRejectsBadPortOverride(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	err := runner.New(&fakeExample{}).Run(context.Background(), runner.Options{Port: 99999, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestRunCheckVendors(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	t.Run("failing vendor", func(t *testing.T) {
		ex := &fakeExample{sttErr: errors.New("401 unauthorized")}
		err := runner.New(ex).Run(context.Background(), runner.Options{
			CheckVendors: true,
			Listener:     localListener(t),
			Logger:       quietLogger(),
		})
		var ve *runner.VendorError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, err.Error(), "speech-to-text")
	})

	t.Run("healthy vendors", func(t *testing.T) {
		r := runner.New(&fakeExample{})
		cancel, errc := start(t, r, runner.Options{
			CheckVendors: true,
			Listener:     localListener(t),
			Logger:       quietLogger(),
		})
		require.NoError(t, stop(t, cancel, errc))
	})
}

func TestRunOnlyOnce(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	r := runner.New(&fakeExample{})
	cancel, errc := start(t, r, runner.Options{Listener: localListener(t), Logger: quietLogger()})
	assert.ErrorIs(t, r.Run(context.Background(), runner.Options{}), runner.ErrAlreadyStarted)
	require.NoError(t, stop(t, cancel, errc))
}

func TestRestartReproducesStartup(t *testing.T) {
	clearKeys(t)
	t.Setenv(config.EnvOpenAIKey, "sk-test")

	for i := 0; i < 2; i++ {
		ex := &fakeExample{}
		r := runner.New(ex)
		cancel, errc := start(t, r, runner.Options{Listener: localListener(t), Logger: quietLogger()})

		resp, err := http.Get("http://" + r.Addr() + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, stop(t, cancel, errc))
		assert.EqualValues(t, 1, ex.builds.Load())
	}
}

func TestRunLoadsEnvFile(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-file\n"), 0o600))

	ex := &fakeExample{}
	r := runner.New(ex)
	cancel, errc := start(t, r, runner.Options{
		EnvFile:         path,
		EnvFileRequired: true,
		Listener:        localListener(t),
		Logger:          quietLogger(),
	})
	assert.Equal(t, "sk-from-file", ex.openai.APIKey)
	require.NoError(t, stop(t, cancel, errc))
}

func TestExecute(t *testing.T) {
	clearKeys(t)

	t.Run("help", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := runner.Execute(context.Background(), &fakeExample{}, []string{"--help"}, &stdout, &stderr)
		assert.Equal(t, runner.ExitOK, code)
		assert.Contains(t, stderr.String(), "--check-vendors")
	})

	t.Run("unknown flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := runner.Execute(context.Background(), &fakeExample{}, []string{"--nope"}, &stdout, &stderr)
		assert.Equal(t, runner.ExitUsage, code)
	})

	t.Run("missing key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("# empty\n"), 0o600))

		var stdout, stderr bytes.Buffer
		code := runner.Execute(context.Background(), &fakeExample{}, []string{"-e", path}, &stdout, &stderr)
		assert.Equal(t, runner.ExitError, code)
		assert.Contains(t, stderr.String(), "configuration error")
		assert.Contains(t, stderr.String(), config.EnvOpenAIKey)
		assert.Empty(t, stdout.String())
	})

	t.Run("missing explicit env file", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := runner.Execute(context.Background(), &fakeExample{},
			[]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, &stdout, &stderr)
		assert.Equal(t, runner.ExitError, code)
		assert.Contains(t, stderr.String(), "absent.env")
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not started", runner.StateNotStarted.String())
	assert.Equal(t, "running", runner.StateRunning.String())
	assert.Equal(t, "stopped", runner.StateStopped.String())
}
