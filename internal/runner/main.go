package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-humphrey/internal/config"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Main runs ex as a command and exits the process.
func Main(ex Example) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := Execute(ctx, ex, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// Execute parses args, runs ex until ctx is cancelled and returns the
// process exit code.
func Execute(ctx context.Context, ex Example, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet(ex.Name(), pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s: %s\n\nUsage:\n  %s [flags]\n\nFlags:\n", ex.Name(), ex.Description(), ex.Name())
		fs.PrintDefaults()
	}

	envFile := fs.StringP("env-file", "e", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	host := fs.String("host", "", "listen host (overrides BOT_HOST)")
	port := fs.IntP("port", "p", 0, "listen port (overrides BOT_PORT)")
	logLevel := fs.StringP("log-level", "l", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	checkVendors := fs.Bool("check-vendors", false, "verify vendor credentials before serving")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	opts := Options{
		EnvFile:         *envFile,
		EnvFileRequired: fs.Changed("env-file"),
		Host:            *host,
		Port:            *port,
		LogLevel:        *logLevel,
		CheckVendors:    *checkVendors,
	}

	r := New(ex)
	go func() {
		select {
		case <-r.Ready():
			banner(stdout, ex, r.ClientURL())
		case <-ctx.Done():
		}
	}()

	if err := r.Run(ctx, opts); err != nil {
		report(stderr, err)
		return ExitError
	}
	return ExitOK
}

func banner(w io.Writer, ex Example, url string) {
	title := color.New(color.FgCyan, color.Bold)
	link := color.New(color.FgGreen, color.Underline)

	fmt.Fprintln(w)
	title.Fprintf(w, "  %s\n", ex.Name())
	fmt.Fprintf(w, "  %s\n\n", ex.Description())
	fmt.Fprint(w, "  Open ")
	link.Fprint(w, url)
	fmt.Fprintln(w, " in your browser and allow the microphone.")
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

func report(w io.Writer, err error) {
	label := color.New(color.FgRed, color.Bold)

	var (
		listenErr *ListenError
		vendorErr *VendorError
	)
	switch {
	case config.IsConfigError(err):
		label.Fprint(w, "configuration error: ")
	case errors.As(err, &listenErr):
		label.Fprint(w, "startup error: ")
	case errors.As(err, &vendorErr):
		label.Fprint(w, "vendor error: ")
	default:
		label.Fprint(w, "error: ")
	}
	fmt.Fprintln(w, err)
}
