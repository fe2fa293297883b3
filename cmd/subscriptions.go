package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/gateway"
	"github.com/frahmantamala/pos-billing/internal/notification"
	"github.com/frahmantamala/pos-billing/internal/scheduler"
	"github.com/frahmantamala/pos-billing/internal/subscription"
	subscriptionpg "github.com/frahmantamala/pos-billing/internal/subscription/postgres"
	"github.com/frahmantamala/pos-billing/pkg/logger"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Subscription billing jobs",
	Long:  `Scheduled billing jobs: trial expiry, renewal charging and payment reminders. Run these from cron.`,
}

var (
	sweepDryRun   bool
	reminderDays  int
	reminderTrial bool
)

var checkExpiriesCmd = &cobra.Command{
	Use:   "check-expiries",
	Short: "Expire trials and charge due renewals",
	Long:  `Move ended trials to past_due and charge every subscription whose billing date has arrived. Safe to re-run; already-renewed subscriptions are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCheckExpiries()
	},
}

var sendRemindersCmd = &cobra.Command{
	Use:   "send-reminders",
	Short: "Send upcoming-billing reminder emails",
	Long:  `Email every client whose billing date (or trial end, with --trial) falls exactly --days days from today.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSendReminders()
	},
}

func runCheckExpiries() {
	deps, lock := initBillingJob()
	ctx := context.Background()

	release, ok := lock.Acquire(ctx, "check-expiries")
	if !ok {
		deps.Logger.Info("another instance is already running the sweep, exiting")
		return
	}
	defer release()

	expired, err := deps.Service.ExpireTrials(ctx, sweepDryRun)
	if err != nil {
		deps.Logger.Error("trial expiry failed", "error", err)
		os.Exit(1)
	}
	deps.Logger.Info("trial expiry complete", "expired", expired, "dry_run", sweepDryRun)

	summary, err := deps.Renewer.RunDueRenewals(ctx, sweepDryRun)
	if err != nil {
		deps.Logger.Error("renewal sweep failed", "error", err)
		os.Exit(1)
	}

	deps.Logger.Info("renewal sweep complete",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"dry_run", sweepDryRun)
}

func runSendReminders() {
	deps, lock := initBillingJob()
	ctx := context.Background()

	release, ok := lock.Acquire(ctx, "send-reminders")
	if !ok {
		deps.Logger.Info("another instance is already sending reminders, exiting")
		return
	}
	defer release()

	summary, err := deps.Dispatcher.SendReminders(ctx, reminderDays, reminderTrial, sweepDryRun)
	if err != nil {
		deps.Logger.Error("reminder dispatch failed", "error", err)
		os.Exit(1)
	}

	deps.Logger.Info("reminder dispatch complete",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"days", reminderDays,
		"trial", reminderTrial,
		"dry_run", sweepDryRun)
}

type billingJobDeps struct {
	Config     *internal.Config
	Logger     *slog.Logger
	Service    *subscription.Service
	Renewer    *subscription.Renewer
	Dispatcher *subscription.ReminderDispatcher
}

func initBillingJob() (*billingJobDeps, scheduler.JobLock) {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	subscriptionRepo := subscriptionpg.NewSubscriptionRepository(gormDB)
	paymentRepo := subscriptionpg.NewPaymentRepository(gormDB)
	planRepo := subscriptionpg.NewPlanRepository(gormDB)
	clientRepo := subscriptionpg.NewClientRepository(gormDB)
	licenseRepo := subscriptionpg.NewLicenseRepository(gormDB)
	merchantRepo := subscriptionpg.NewMerchantRepository(gormDB)

	eventBus := events.NewEventBus(log)

	notifier := buildNotifier(config, log)
	notificationHandler := notification.NewEventHandler(clientRepo, notifier, log)
	notificationHandler.RegisterEventHandlers(eventBus)

	machine := subscription.NewMachine(
		config.Billing.SuspendThreshold,
		config.Billing.WarnThreshold,
		config.Billing.RetryInterval,
	)
	service := subscription.NewService(machine, subscriptionRepo, paymentRepo,
		planRepo, licenseRepo, eventBus, log)

	manager := gateway.NewManager(log)
	renewer := subscription.NewRenewer(machine, subscriptionRepo, planRepo,
		clientRepo, merchantRepo, licenseRepo, manager, config.Gateways, eventBus, log)

	dispatcher := subscription.NewReminderDispatcher(subscriptionRepo, planRepo,
		clientRepo, notifier, log)

	var lock scheduler.JobLock = scheduler.NoopJobLock{}
	if config.Redis.Addr != "" {
		lock = scheduler.NewRedisJobLock(config.Redis, config.Billing.SweepLockTTL, log)
	} else {
		log.Warn("no redis configured, running without the sweep lock")
	}

	return &billingJobDeps{
		Config:     config,
		Logger:     log,
		Service:    service,
		Renewer:    renewer,
		Dispatcher: dispatcher,
	}, lock
}

func init() {
	checkExpiriesCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Report what would be charged without charging")
	sendRemindersCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Report what would be sent without sending")
	sendRemindersCmd.Flags().IntVar(&reminderDays, "days", 3, "Days before the billing date to remind")
	sendRemindersCmd.Flags().BoolVar(&reminderTrial, "trial", false, "Remind about trial endings instead of renewals")

	subscriptionsCmd.AddCommand(checkExpiriesCmd)
	subscriptionsCmd.AddCommand(sendRemindersCmd)
}
