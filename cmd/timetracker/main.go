package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timetracker/internal/config"
	"timetracker/internal/notify"
	"timetracker/internal/repository"
	"timetracker/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken)
		if err != nil {
			log.Fatalf("telegram: %v", err)
		}
		notifier = tg
	}

	userRepo := repository.NewUserRepository(db)
	worklogRepo := repository.NewWorklogRepository(db)

	consolidationSvc := service.NewConsolidationService(db, worklogRepo)
	capacitySvc := service.NewCapacityService(db, worklogRepo, userRepo, notifier)

	// Repair any duplicate work-day keys before taking traffic. Safe to
	// re-run; a clean dataset is a no-op. The unique index is installed
	// only after the repair: a database that predates the constraint may
	// still hold duplicate rows, and creating the index first would fail.
	startupCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	report, err := consolidationSvc.Consolidate(startupCtx)
	cancel()
	if err != nil {
		log.Fatalf("consolidation: %v", err)
	}
	log.Printf("startup consolidation: %d groups merged", report.Groups)
	if err := repository.EnsureWorkDayKey(db); err != nil {
		log.Fatalf("work day key: %v", err)
	}

	scheduler := service.NewSchedulerService(cfg.Timezone)
	if _, err := scheduler.ScheduleDaily(cfg.ConsolidateAt, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := consolidationSvc.Consolidate(jobCtx); err != nil {
			log.Printf("nightly consolidation: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule consolidation: %v", err)
	}

	if cfg.DigestInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.DigestInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := capacitySvc.SendWeeklyDigest(jobCtx, time.Now().In(cfg.Timezone)); err != nil {
				log.Printf("utilization digest: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Time tracker started.")
	<-ctx.Done()
	log.Println("Shutdown complete.")
}
