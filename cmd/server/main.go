package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"focus-keeper/internal/analytics"
	"focus-keeper/internal/auth"
	"focus-keeper/internal/config"
	"focus-keeper/internal/focus"
	"focus-keeper/internal/httpapi"
	"focus-keeper/internal/keyqueue"
	"focus-keeper/internal/scheduler"
	"focus-keeper/internal/storage"
	"focus-keeper/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("shutting down")
}

// run wires the components and serves until SIGINT or SIGTERM. Setup errors
// are returned so the deferred cleanup still runs.
func run(cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	store, sweeper, err := openStore(cfg, clock)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}()
	if sweeper != nil {
		// no writer is running yet, so every temp file is an orphan
		if n, err := sweeper.SweepTemp(0); err != nil {
			log.Printf("startup sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("🧹 removed %d orphaned temp files", n)
		}
	}

	var journal storage.Recorder
	if fr, err := storage.NewFileRecorder(cfg.JournalPath()); err != nil {
		log.Printf("failed to init journal: %v", err)
	} else {
		journal = fr
		defer func() {
			if err := fr.Close(); err != nil {
				log.Printf("failed to close journal: %v", err)
			}
		}()
	}

	queue := keyqueue.New(keyqueue.WithName("users"))
	svcOpts := []focus.Option{focus.WithClock(clock)}
	if journal != nil {
		svcOpts = append(svcOpts, focus.WithJournal(journal))
	}
	svc := focus.NewService(store, queue, svcOpts...)

	var userRepo auth.Repository
	if repo, err := auth.NewFileRepository(cfg.RegistryPath()); err != nil {
		log.Printf("failed to init user registry: %v", err)
	} else {
		userRepo = repo
	}
	users, err := auth.NewWithRepo(userRepo)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bot *telegram.Bot
	if cfg.TelegramBotToken != "" {
		botOpts := []telegram.Option{
			telegram.WithAdmin(cfg.AdminUserID),
			telegram.WithMiniAppURL(cfg.MiniAppURL),
			telegram.WithClock(clock),
		}
		if journal != nil {
			botOpts = append(botOpts, telegram.WithJournal(journal))
		}
		bot, err = telegram.New(cfg.TelegramBotToken, svc, users, botOpts...)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		go bot.Start(ctx)
		if cfg.RequireInitData {
			log.Println("⚠️ bot app links open without init data; set the Mini App menu button in BotFather")
		}
	} else {
		log.Println("⚠️ TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	sched := scheduler.New()
	if sweeper != nil {
		if err := sched.Add("sweep", cfg.SweepCron, func(context.Context) error {
			n, err := sweeper.SweepTemp(time.Hour)
			if n > 0 {
				log.Printf("🧹 removed %d orphaned temp files", n)
			}
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule sweep: %w", err)
		}
	}
	if journal != nil {
		if err := sched.Add("report", cfg.ReportCron, dailyReport(bot, journal, clock)); err != nil {
			return fmt.Errorf("failed to schedule report: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	httpOpts := []httpapi.Option{
		httpapi.RequireInitData(cfg.RequireInitData),
		httpapi.WithStaticDir(cfg.StaticDir),
	}
	if cfg.TelegramBotToken != "" {
		httpOpts = append(httpOpts, httpapi.WithVerifier(auth.NewVerifier(cfg.TelegramBotToken, cfg.InitDataMaxAge, clock)))
	}
	server := httpapi.New(svc, httpOpts...)
	if err := server.Run(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout); err != nil {
		log.Printf("http server failed: %v", err)
	}
	return nil
}

// openStore returns the configured document store and, for the file
// driver, the store itself as the temp sweeper.
func openStore(cfg *config.Config, clock clockwork.Clock) (storage.Store, *storage.FileStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := storage.NewSQLiteStore(cfg.SQLitePath(), storage.WithClock(clock))
		if err != nil {
			return nil, nil, err
		}
		log.Printf("💾 sqlite store at %s", cfg.SQLitePath())
		return s, nil, nil
	case config.DriverFile:
		s, err := storage.NewFileStore(cfg.UsersDir(), storage.WithClock(clock))
		if err != nil {
			return nil, nil, err
		}
		log.Printf("💾 file store at %s", cfg.UsersDir())
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// dailyReport sends the report through the bot, or logs it when the bot is
// disabled.
func dailyReport(bot *telegram.Bot, journal storage.Recorder, clock clockwork.Clock) scheduler.JobFunc {
	return func(ctx context.Context) error {
		if bot != nil {
			return bot.SendDailyReport(ctx)
		}
		stats, err := analytics.Today(journal, clock.Now().UTC())
		if err != nil {
			return err
		}
		log.Printf("📊 %s", stats.GenerateReportSummary())
		return nil
	}
}
