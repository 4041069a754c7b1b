package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/command"
	"github.com/menuvox/menuvox/internal/condition"
	"github.com/menuvox/menuvox/internal/config"
	"github.com/menuvox/menuvox/internal/defaults"
	"github.com/menuvox/menuvox/internal/engine"
	"github.com/menuvox/menuvox/internal/events"
	"github.com/menuvox/menuvox/internal/history"
	"github.com/menuvox/menuvox/internal/logging"
	"github.com/menuvox/menuvox/internal/nav"
	"github.com/menuvox/menuvox/internal/notify"
	"github.com/menuvox/menuvox/internal/ocr"
	"github.com/menuvox/menuvox/internal/pointer"
	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/resolve"
	"github.com/menuvox/menuvox/internal/server"
	"github.com/menuvox/menuvox/internal/speech"
)

// RunDaemon starts the full daemon (default mode): detection engine, control
// API server and profile watcher.
func RunDaemon() {
	if err := runDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
		os.Exit(1)
	}
}

func runDaemon() error {
	c := DaemonConfig

	// Flag overrides
	if verbose {
		c.Logging.Level = "debug"
	}
	if profileFlag != "" {
		c.Profile.Path = profileFlag
	}
	if noSpeech {
		c.Speech.Enabled = false
	}
	if noPointer {
		c.Pointer.Enabled = false
	}

	// Seed the data directory with the bundled config and profile on first
	// run. A custom data_dir is left alone; whoever set it owns its layout.
	if c.DataDir == config.DefaultDataDir() {
		if _, err := defaults.EnsureDataDir(); err != nil {
			return fmt.Errorf("initialize data directory: %w", err)
		}
	} else if err := c.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory %s: %w", c.DataDir, err)
	}

	// Enforce single instance with a lock file. Two daemons would fight over
	// the pointer and talk over each other.
	lockFile, err := acquireLock(c.DataDir)
	if err != nil {
		return fmt.Errorf("%w (is menuvox already running?)", err)
	}
	defer releaseLock(lockFile)

	closeLogs, err := logging.Setup(logging.Options{
		Level:      c.Logging.Level,
		File:       c.LogFile(),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		Console:    c.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLogs()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof, err := profile.Load(c.ProfilePath())
	if err != nil {
		logger.Warn("profile not loaded, starting with built-in fallback",
			"path", c.ProfilePath(), "error", err)
		prof = profile.Default()
	} else if err := prof.Validate(); err != nil {
		logger.Warn("profile has issues", "error", err)
	}

	bus := events.NewBus()
	defer events.Complete(bus)

	capSvc := capture.NewService(
		capture.WithCacheTTL(c.CaptureCacheTTL()),
		capture.WithDemoteAfter(c.Capture.DemoteAfter),
	)
	ocrBackend := ocr.New(
		ocr.WithLanguages(c.OCR.Languages...),
		ocr.WithCacheTTL(c.OCRCacheTTL()),
		ocr.WithMaxCacheEntries(c.OCR.MaxCacheEntries),
	)
	cond := condition.New(condition.WithTextReader(ocrBackend))
	resolver := resolve.New(cond)
	machine := nav.New(cond)
	machine.SetProfile(prof)

	var speechQueue *speech.Queue
	if c.Speech.Enabled {
		speechQueue = speech.NewQueue(
			speech.WithVoice(c.Speech.Voice),
			speech.WithMinGap(c.SpeechMinGap()),
			speech.WithReinitCooldown(c.SpeechReinitCooldown()),
		)
	}

	var ptr pointer.Controller
	if c.Pointer.Enabled {
		ptr = pointer.New()
	}

	var store *history.Store
	if c.History.Enabled {
		store, err = history.Open(c.DBPath())
		if err != nil {
			logger.Warn("history disabled, database unavailable",
				"path", c.DBPath(), "error", err)
			store = nil
		} else {
			defer store.Close()
			detach := store.Attach(bus)
			defer detach()
			retention := time.Duration(c.History.RetentionDays) * 24 * time.Hour
			if err := store.SchedulePruning(c.History.PruneSchedule, retention); err != nil {
				logger.Warn("history pruning not scheduled", "error", err)
			}
		}
	}

	if c.Notify.Enabled {
		detachNotify := notify.New().Attach(bus)
		defer detachNotify()
	}

	eng := engine.New(engine.Deps{
		Capture:    capSvc,
		Conditions: cond,
		Resolver:   resolver,
		Nav:        machine,
		OCR:        ocrBackend,
		Speech:     speechQueue,
		Pointer:    ptr,
		Bus:        bus,
	},
		engine.WithIntervals(c.DetectionInterval(), c.DetectionMaxInterval()),
		engine.WithIdleThreshold(c.Detection.IdleThreshold),
		engine.WithAutoDetect(c.Detection.AutoStart),
	)

	_ = events.Emit(bus, events.TopicProfileLoaded, events.ProfileLoaded{
		Path:  c.ProfilePath(),
		Menus: len(prof),
		At:    time.Now(),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if c.Server.Enabled {
		srv := server.New(c.ListenAddr(), c.ProfilePath(), server.Deps{
			Engine:  eng,
			Nav:     machine,
			Bus:     bus,
			History: store,
			Capture: capSvc,
		})
		g.Go(func() error {
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
	}

	if c.Profile.Watch {
		watcher := profile.NewWatcher(c.ProfilePath(), func(profile.Profile) {
			// Swap through the queue so reloads serialize with command
			// execution; the watcher's own load result is discarded.
			eng.Queue().Enqueue(command.Reload(c.ProfilePath()))
		})
		g.Go(func() error {
			if err := watcher.Watch(ctx); err != nil {
				return fmt.Errorf("profile watcher: %w", err)
			}
			return nil
		})
	}

	printStartupBanner(c)

	err = g.Wait()
	fmt.Println("\nMenuvox stopped.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printStartupBanner prints a clean, clickable startup message
func printStartupBanner(c *config.Config) {
	fmt.Println()
	fmt.Println("\033[1;32m  Menuvox is running\033[0m")
	fmt.Println()
	if c.Server.Enabled {
		fmt.Printf("  \033[1;36m→\033[0m Control API: \033[4;34mhttp://%s\033[0m\n", c.ListenAddr())
	}
	fmt.Printf("  \033[1;36m→\033[0m Profile:     %s\n", c.ProfilePath())
	fmt.Println()
	fmt.Printf("  \033[2mData: %s\033[0m\n", c.DataDir)
	fmt.Println()
	fmt.Println("  \033[2mPress Ctrl+C to stop\033[0m")
	fmt.Println()
}
