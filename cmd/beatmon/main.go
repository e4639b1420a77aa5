// beatmon - a collaborator-facing demo harness for the beatcore pipeline.
//
// Wiring shape follows the teacher's main(): build each component, hand its
// outputs to the next, run the steady-state loop until a shutdown signal
// arrives. Flag parsing uses spf13/pflag the way the teacher's own CLI does;
// goroutine lifecycle uses golang.org/x/sync/errgroup so the capture loop,
// console, and click track all unwind together on first error or signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/synqing/beatcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "beatmon:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		sourceKind = pflag.String("source", "synthetic", "capture source: synthetic, wav, or live")
		wavPath    = pflag.String("wav", "", "path to a WAV file (required when -source=wav)")
		configPath = pflag.String("config", "beatcore.yaml", "path to the hot-reloadable config file")
		sessionDB  = pflag.String("session-db", "", "path to a sqlite file to log the diagnostic stream (empty disables logging)")
		sampleRate = pflag.Int("sample-rate", 44100, "capture sample rate in Hz")
		click      = pflag.Bool("click", false, "play an audible click on every detected beat")
		dashboard  = pflag.Bool("dashboard", true, "render a live terminal dashboard")
	)
	pflag.Parse()

	cfg, err := beatcore.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	hopSize := cfg.Window.Size / 4

	core := beatcore.NewCore(cfg, *sampleRate, hopSize)

	// Hot reload only makes sense once a config file actually exists on
	// disk; LoadConfig tolerates a missing file by falling back to
	// defaults, but fsnotify has nothing to watch in that case.
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, watchErr := beatcore.WatchConfig(*configPath, func(next *beatcore.Config) {
			core.Reconfigure(next)
		})
		if watchErr != nil {
			return fmt.Errorf("watch config: %w", watchErr)
		}
		defer watcher.Close()
	}

	source, err := newCaptureSource(*sourceKind, *wavPath, *sampleRate, hopSize)
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}
	defer source.Close()

	var sessionlog *sessionLog
	if *sessionDB != "" {
		sessionlog, err = newSessionLog(*sessionDB)
		if err != nil {
			return fmt.Errorf("open session log: %w", err)
		}
		defer sessionlog.Close()
	}

	var dash *console
	if *dashboard {
		dash = newConsole(core.Bus())
		dash.Start(15)
		defer dash.Stop()
	}

	var clicker *clickTrack
	if *click {
		clicker, err = newClickTrack(*sampleRate, core.Bus())
		if err != nil {
			return fmt.Errorf("open click track: %w", err)
		}
		clicker.Start()
		defer clicker.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return captureLoop(ctx, core, source, sessionlog, hopSize)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// captureLoop pulls hops from source and drives them through core at a rate
// gated by the source's own sample clock, the same role the teacher's
// per-frame mixing loop plays for SoundChip.
func captureLoop(ctx context.Context, core *beatcore.Core, source captureSource, sessionlog *sessionLog, hopSize int) error {
	hopDuration := time.Duration(hopSize) * time.Second / time.Duration(source.SampleRate())
	ticker := time.NewTicker(hopDuration)
	defer ticker.Stop()

	buf := make([]int32, hopSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := source.Hop(buf); err != nil {
				if err == io.EOF {
					return nil
				}
				return fmt.Errorf("capture hop: %w", err)
			}
			if err := core.ProcessHop(buf); err != nil {
				var shortHop *beatcore.ShortHopError
				if !errors.As(err, &shortHop) {
					return fmt.Errorf("process hop: %w", err)
				}
				continue
			}
			if sessionlog != nil {
				if frame := core.Bus().Load(); frame != nil {
					if err := sessionlog.Append(frame); err != nil {
						return err
					}
				}
			}
		}
	}
}

