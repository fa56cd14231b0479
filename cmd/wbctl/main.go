package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/client"
	"github.com/DoyleJ11/lab-whiteboard/internal/roomapi"
	"github.com/DoyleJ11/lab-whiteboard/internal/scene"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const WbctlVersion = "0.1.0"

const requestTimeout = 10 * time.Second

func main() {
	usage := `Lab whiteboard control.

The hub url defaults to $WHITEBOARD_HUB_URL, then http://localhost:8000.

Usage:
    wbctl create [--hub_url=<hub_url>] --name=<name> --user=<user> [--stay] [--debug]
    wbctl join [--hub_url=<hub_url>] <room_id> --user=<user> [--for=<duration>] [--debug]
    wbctl export [--hub_url=<hub_url>] <room_id> --out=<file> [--debug]
    wbctl import [--hub_url=<hub_url>] <room_id> <file> --user=<user> [--debug]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --hub_url=<hub_url>    Hub base url.
    --name=<name>          Room name.
    --user=<user>          Display name in the room.
    --stay                 Stay connected after creating the room.
    --for=<duration>       Disconnect after this long, e.g. 30s. Default: until interrupted.
    --out=<file>           Setup file to write.
    --debug                Verbose logging.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WbctlVersion)
	if err != nil {
		panic(err)
	}

	_ = godotenv.Load()

	debug, _ := opts.Bool("--debug")
	logger := newLogger(debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := client.DefaultConfig()
	cfg.HubURL = hubURL(opts)
	api := roomapi.New(cfg.HubURL, nil, logger)

	if create_, _ := opts.Bool("create"); create_ {
		err = create(ctx, cfg, api, opts, logger)
	} else if join_, _ := opts.Bool("join"); join_ {
		err = join(ctx, cfg, api, opts, logger)
	} else if export_, _ := opts.Bool("export"); export_ {
		err = export(ctx, cfg, api, opts)
	} else if import_, _ := opts.Bool("import"); import_ {
		err = importFile(ctx, cfg, api, opts, logger)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "wbctl:", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		logger, err = cfg.Build()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func hubURL(opts docopt.Opts) string {
	if u, _ := opts.String("--hub_url"); u != "" {
		return u
	}
	if u := os.Getenv("WHITEBOARD_HUB_URL"); u != "" {
		return u
	}
	return client.DefaultConfig().HubURL
}

func create(ctx context.Context, cfg client.Config, api *roomapi.Client, opts docopt.Opts, logger *zap.Logger) error {
	name, _ := opts.String("--name")
	user, _ := opts.String("--user")

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	info, st, err := client.CreateAndJoin(rctx, api, name, user, cfg.DefaultColor)
	cancel()
	if err != nil {
		return err
	}
	fmt.Println(info.RoomID)

	if stay, _ := opts.Bool("--stay"); !stay {
		return nil
	}
	return runSession(ctx, cfg, info, st, 0, logger)
}

func join(ctx context.Context, cfg client.Config, api *roomapi.Client, opts docopt.Opts, logger *zap.Logger) error {
	roomID, _ := opts.String("<room_id>")
	user, _ := opts.String("--user")

	var limit time.Duration
	if s, _ := opts.String("--for"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("--for: %w", err)
		}
		limit = d
	}

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	info, st, err := client.Bootstrap(rctx, api, strings.ToUpper(roomID), user, cfg.DefaultColor)
	cancel()
	if err != nil {
		return err
	}
	return runSession(ctx, cfg, info, st, limit, logger)
}

func export(ctx context.Context, cfg client.Config, api *roomapi.Client, opts docopt.Opts) error {
	roomID, _ := opts.String("<room_id>")
	out, _ := opts.String("--out")

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	_, st, err := client.Bootstrap(rctx, api, strings.ToUpper(roomID), "wbctl", cfg.DefaultColor)
	cancel()
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := scene.Export(f, st, time.Now()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d items and %d connections to %s\n", len(st.Items), len(st.Connections), out)
	return nil
}

func importFile(ctx context.Context, cfg client.Config, api *roomapi.Client, opts docopt.Opts, logger *zap.Logger) error {
	roomID, _ := opts.String("<room_id>")
	path, _ := opts.String("<file>")
	user, _ := opts.String("--user")

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	info, st, err := client.Bootstrap(rctx, api, strings.ToUpper(roomID), user, cfg.DefaultColor)
	cancel()
	if err != nil {
		return err
	}

	connected := make(chan struct{})
	s := client.New(cfg, info, st, client.Deps{
		Status: statusFunc(func(l client.Lifecycle) {
			if l == client.Connected {
				select {
				case <-connected:
				default:
					close(connected)
				}
			}
		}),
		Logger: logger,
	})
	defer s.Close()
	if err := s.Start(ctx); err != nil {
		return err
	}

	select {
	case <-connected:
	case <-time.After(requestTimeout):
		return errors.New("hub did not accept the channel in time")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.Import(f); err != nil {
		return err
	}
	// View round-trips the loop, so the broadcast has been written.
	vctx, vcancel := context.WithTimeout(ctx, requestTimeout)
	defer vcancel()
	v, err := s.View(vctx)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d items into %s\n", len(v.Scene.Items), info.RoomID)
	return nil
}

func runSession(ctx context.Context, cfg client.Config, info types.Session, st types.State, limit time.Duration, logger *zap.Logger) error {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	s := client.New(cfg, info, st, client.Deps{
		Renderer: newPrinter(logger),
		Notifier: notifyFunc(func(n client.Notice) { logger.Info(n.Text) }),
		Status: statusFunc(func(l client.Lifecycle) {
			logger.Info("status", zap.Stringer("state", l))
		}),
		Logger: logger,
	})
	if err := s.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("joined %s as %s\n", info.RoomID, info.Username)

	<-ctx.Done()
	return s.Close()
}
