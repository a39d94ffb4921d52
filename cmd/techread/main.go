package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/config"
	"github.com/danmuck/techread/internal/hooks"
	"github.com/danmuck/techread/internal/logging"
	"github.com/danmuck/techread/internal/observability"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/session"
	"github.com/danmuck/techread/internal/viewer"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logging.ConfigureRuntime()
	if len(args) > 0 && args[0] == "status" {
		return runStatus(ctx, args[1:], stdout, stderr)
	}
	return runRead(ctx, args, stdout, stderr)
}

type profileFlags struct {
	config  string
	envFile string
}

func (p *profileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.config, "config", "", "TOML connection profile (TECHREAD_* env overrides)")
	fs.StringVar(&p.envFile, "env-file", "", "dotenv file loaded before the environment (default .techread)")
}

func (p profileFlags) client(ctx context.Context, logger zerolog.Logger) (*session.Client, error) {
	profile, err := config.Resolve(p.config, p.envFile)
	if err != nil {
		return nil, err
	}
	cfg, err := profile.SessionConfig(ctx, logger)
	if err != nil {
		return nil, err
	}
	return session.NewClient(cfg)
}

func newLogger(level string) zerolog.Logger {
	lvl, ok := logging.ParseLevel(level)
	if !ok {
		lvl = zerolog.WarnLevel
	}
	return observability.InitLogger("techread", lvl)
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("techread status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var profile profileFlags
	profile.register(fs)
	arch := fs.String("arch", string(protocol.ArchitectureGPUV1), "architecture: GPU_V1|CPU_V1")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := newLogger(*logLevel)
	client, err := profile.client(ctx, logger)
	if err != nil {
		fmt.Fprintf(stderr, "techread: %v\n", err)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	status, err := client.ArchitectureStatus(ctx, protocol.Architecture(strings.ToUpper(strings.TrimSpace(*arch))))
	if err != nil {
		fmt.Fprintf(stderr, "techread: %s\n", describe(err))
		return 1
	}
	fmt.Fprintf(stdout, "%s: %s\n", strings.ToUpper(*arch), status)
	return 0
}

func runRead(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("techread", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: techread [flags] <drawing>\n       techread status [-arch GPU_V1]\n")
		fs.PrintDefaults()
	}
	var profile profileFlags
	profile.register(fs)
	cliConfig := fs.String("cli-config", "", "TOML file with default read flags")
	var set cliOptions
	fs.BoolVar(&set.AskStarted, "ask-techread-started", true, "report when the read starts")
	fs.BoolVar(&set.AskPageThumbnail, "ask-page-thumbnail", false, "request the page thumbnail")
	fs.BoolVar(&set.AskSheetThumbnail, "ask-sheet-thumbnail", false, "request the sheet thumbnail")
	fs.BoolVar(&set.AskSectional, "ask-sectional-thumbnail", false, "request sectional thumbnails")
	fs.BoolVar(&set.AskVariantMeasures, "ask-variant-measures", false, "request variant measures")
	fs.BoolVar(&set.AskDimensions, "ask-overall-dimensions", false, "request overall part dimensions")
	fs.IntVar(&set.ThumbnailMaxWidth, "thumbnail-max-width", 0, "thumbnail width limit in pixels")
	fs.IntVar(&set.ThumbnailMaxHeight, "thumbnail-max-height", 0, "thumbnail height limit in pixels")
	fs.StringVar(&set.ModelPath, "model", "", "optional 3D model attached to the drawing")
	fs.StringVar(&set.ViewDir, "view-dir", "", "write thumbnails into this directory")
	fs.StringVar(&set.LogLevel, "log-level", "warn", "log level")
	fs.IntVar(&set.ConnectAttempts, "connect-attempts", 3, "control channel connect attempts")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	opts := defaultCLIOptions()
	if *cliConfig != "" {
		var err error
		if opts, err = loadCLIConfig(*cliConfig, opts); err != nil {
			fmt.Fprintf(stderr, "techread: %v\n", err)
			return 1
		}
	}
	overlayFlags(fs, &opts, set)

	logger := newLogger(opts.LogLevel)
	document, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "techread: read drawing: %v\n", err)
		return 1
	}
	var readOpts []session.ReadOption
	if opts.ModelPath != "" {
		model, err := os.ReadFile(opts.ModelPath)
		if err != nil {
			fmt.Fprintf(stderr, "techread: read model: %v\n", err)
			return 1
		}
		readOpts = append(readOpts, session.WithModel(model))
	}

	var show viewer.Viewer = viewer.Log{Logger: logger}
	if opts.ViewDir != "" {
		dir, err := viewer.NewDir(opts.ViewDir, logger)
		if err != nil {
			fmt.Fprintf(stderr, "techread: %v\n", err)
			return 1
		}
		show = dir
	}

	client, err := profile.client(ctx, logger)
	if err != nil {
		fmt.Fprintf(stderr, "techread: %v\n", err)
		return 1
	}
	defer client.Close()

	s, err := client.OpenWithRetry(ctx, opts.ConnectAttempts)
	if err != nil {
		fmt.Fprintf(stderr, "techread: %s\n", describe(err))
		return 1
	}
	defer s.Close()

	out := &reporter{w: stdout, view: show}
	if err := hooks.ReadDrawing(ctx, s, document, out.hooks(opts), readOpts...); err != nil {
		fmt.Fprintf(stderr, "techread: %s\n", describe(err))
		return 1
	}
	if out.failed {
		return 1
	}
	return 0
}

func overlayFlags(fs *flag.FlagSet, opts *cliOptions, set cliOptions) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ask-techread-started":
			opts.AskStarted = set.AskStarted
		case "ask-page-thumbnail":
			opts.AskPageThumbnail = set.AskPageThumbnail
		case "ask-sheet-thumbnail":
			opts.AskSheetThumbnail = set.AskSheetThumbnail
		case "ask-sectional-thumbnail":
			opts.AskSectional = set.AskSectional
		case "ask-variant-measures":
			opts.AskVariantMeasures = set.AskVariantMeasures
		case "ask-overall-dimensions":
			opts.AskDimensions = set.AskDimensions
		case "thumbnail-max-width":
			opts.ThumbnailMaxWidth = set.ThumbnailMaxWidth
		case "thumbnail-max-height":
			opts.ThumbnailMaxHeight = set.ThumbnailMaxHeight
		case "model":
			opts.ModelPath = set.ModelPath
		case "view-dir":
			opts.ViewDir = set.ViewDir
		case "log-level":
			opts.LogLevel = set.LogLevel
		case "connect-attempts":
			opts.ConnectAttempts = set.ConnectAttempts
		}
	})
}

// reporter prints read progress and hands thumbnails to the viewer.
type reporter struct {
	w      io.Writer
	view   viewer.Viewer
	failed bool
}

func (r *reporter) hooks(opts cliOptions) []hooks.Hook {
	limits := protocol.ThumbnailLimits{MaxWidth: opts.ThumbnailMaxWidth, MaxHeight: opts.ThumbnailMaxHeight}
	var hs []hooks.Hook
	if opts.AskStarted {
		hs = append(hs, hooks.Hook{
			MessageType:    protocol.MessageTypeProgress,
			MessageSubtype: protocol.SubtypeProgressStarted,
			Func: func(protocol.Message) error {
				fmt.Fprintln(r.w, "techread started")
				return nil
			},
		})
	}
	if opts.AskPageThumbnail {
		hs = append(hs, hooks.Hook{Ask: protocol.AskPageThumbnail{ThumbnailLimits: limits}, Func: r.showPayload})
	}
	if opts.AskSheetThumbnail {
		hs = append(hs, hooks.Hook{Ask: protocol.AskSheetThumbnail{ThumbnailLimits: limits}, Func: r.showPayload})
	}
	if opts.AskSectional {
		hs = append(hs, hooks.Hook{Ask: protocol.AskSectionalThumbnail{ThumbnailLimits: limits}, Func: r.showPayload})
	}
	if opts.AskVariantMeasures {
		hs = append(hs, hooks.Hook{Ask: protocol.AskVariantMeasures{}, Func: r.printDict})
	}
	if opts.AskDimensions {
		hs = append(hs, hooks.Hook{Ask: protocol.AskPartOverallDimensions{}, Func: r.printDict})
	}
	return append(hs,
		hooks.Hook{MessageType: protocol.MessageTypeProgress, MessageSubtype: protocol.SubtypeProgressCompleted, Func: func(protocol.Message) error {
			fmt.Fprintln(r.w, "techread completed")
			return nil
		}},
		hooks.Hook{MessageType: protocol.MessageTypeError, Func: r.terminalFailure},
		hooks.Hook{MessageType: protocol.MessageTypeRejection, Func: r.terminalFailure},
	)
}

func (r *reporter) showPayload(m protocol.Message) error {
	return r.view.Show(m.PayloadBytes, string(m.Subtype))
}

func (r *reporter) printDict(m protocol.Message) error {
	body, err := json.MarshalIndent(m.PayloadDict, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(r.w, "%s:\n%s\n", m.Subtype, body)
	return nil
}

func (r *reporter) terminalFailure(m protocol.Message) error {
	r.failed = true
	switch m.Type {
	case protocol.MessageTypeRejection:
		fmt.Fprintf(r.w, "techread rejected the drawing: %s\n", m.Subtype)
	case protocol.MessageTypeError, protocol.MessageTypeAsk, protocol.MessageTypeProgress:
		fmt.Fprintf(r.w, "techread failed: %s\n", m.Subtype)
	}
	return nil
}

// describe turns client errors into operator-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return "request too large: the drawing or model exceeds what the server accepts"
	case errors.Is(err, auth.ErrAuthentication):
		return "no valid token: set TECHREAD_TOKEN or configure client credentials"
	case errors.Is(err, protocol.ErrUnauthorized):
		return "unauthorized: the server rejected the token"
	case errors.Is(err, protocol.ErrUntrustedPayloadSource):
		return fmt.Sprintf("refused payload from an untrusted host (%v)", err)
	case errors.Is(err, protocol.ErrConnectionLost):
		return fmt.Sprintf("connection lost before the read finished (%v)", err)
	case errors.Is(err, protocol.ErrConnection):
		return fmt.Sprintf("cannot reach the server (%v)", err)
	default:
		return err.Error()
	}
}
