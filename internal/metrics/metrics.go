package metrics

import (
	"context"
	"sync"

	"github.com/passmint/wallet-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Pass lifecycle counters
	PassesIssued   *telemetry.Counter
	PassesRevoked  *telemetry.Counter
	PassDownloads  *telemetry.Counter
	QRScans        *telemetry.Counter
	SharesCreated  *telemetry.Counter
	SharesAccessed *telemetry.Counter

	// Update pipeline counters
	UpdatesScheduled *telemetry.Counter
	UpdatesCompleted *telemetry.Counter
	UpdatesFailed    *telemetry.Counter
	UpdatesExhausted *telemetry.Counter

	// Trigger counters
	TriggersMatched         *telemetry.Counter
	NotificationsSent       *telemetry.Counter
	NotificationsSuppressed *telemetry.Counter

	// Histograms
	UpdateJobDuration *telemetry.Histogram
	GenerateDuration  *telemetry.Histogram

	// Gauges
	PendingJobs *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all wallet metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	PassesIssued, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_passes_issued_total",
		Description: "Total number of passes issued",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PassesRevoked, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_passes_revoked_total",
		Description: "Total number of passes revoked",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PassDownloads, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_pass_downloads_total",
		Description: "Total number of pass downloads",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	QRScans, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_qr_scans_total",
		Description: "Total number of QR verification scans",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SharesCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_shares_created_total",
		Description: "Total number of share grants issued",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SharesAccessed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_shares_accessed_total",
		Description: "Total number of shared pass accesses",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	UpdatesScheduled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_updates_scheduled_total",
		Description: "Total number of update jobs scheduled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	UpdatesCompleted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_updates_completed_total",
		Description: "Total number of update jobs completed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	UpdatesFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_updates_failed_total",
		Description: "Total number of update job attempts that failed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	UpdatesExhausted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_updates_exhausted_total",
		Description: "Total number of update jobs that exhausted retries",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	TriggersMatched, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_triggers_matched_total",
		Description: "Total number of location and beacon trigger matches",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsSent, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_notifications_sent_total",
		Description: "Total number of trigger notifications dispatched",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsSuppressed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "wallet_notifications_suppressed_total",
		Description: "Total number of trigger notifications suppressed by gating",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	UpdateJobDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "wallet_update_job_duration_seconds",
		Description: "Duration of one update job execution",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30})
	if err != nil {
		return err
	}

	GenerateDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "wallet_generate_duration_seconds",
		Description: "Duration of one platform pass generation",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	PendingJobs, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "wallet_pending_update_jobs",
		Description: "Current number of pending update jobs",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordPassIssued records a pass issuance
func RecordPassIssued(ctx context.Context, platform string) {
	if PassesIssued != nil {
		PassesIssued.Inc(ctx, attribute.String("platform", platform))
	}
}

// RecordPassRevoked records a pass revocation
func RecordPassRevoked(ctx context.Context, platform string) {
	if PassesRevoked != nil {
		PassesRevoked.Inc(ctx, attribute.String("platform", platform))
	}
}

// RecordDownload records a pass download
func RecordDownload(ctx context.Context, platform string) {
	if PassDownloads != nil {
		PassDownloads.Inc(ctx, attribute.String("platform", platform))
	}
}

// RecordQRScan records a QR verification attempt
func RecordQRScan(ctx context.Context, accepted bool) {
	if QRScans != nil {
		QRScans.Inc(ctx, attribute.Bool("accepted", accepted))
	}
}

// RecordShareCreated records an issued share grant
func RecordShareCreated(ctx context.Context) {
	if SharesCreated != nil {
		SharesCreated.Inc(ctx)
	}
}

// RecordShareAccessed records a shared pass access
func RecordShareAccessed(ctx context.Context) {
	if SharesAccessed != nil {
		SharesAccessed.Inc(ctx)
	}
}

// RecordScheduled records scheduled update jobs
func RecordScheduled(ctx context.Context, kind string, count int64) {
	if UpdatesScheduled != nil {
		UpdatesScheduled.Add(ctx, count, attribute.String("kind", kind))
	}
	if PendingJobs != nil {
		PendingJobs.Add(ctx, count)
	}
}

// RecordJobCompleted records one completed update job
func RecordJobCompleted(ctx context.Context, kind string, durationSeconds float64) {
	if UpdatesCompleted != nil {
		UpdatesCompleted.Inc(ctx, attribute.String("kind", kind))
	}
	if UpdateJobDuration != nil {
		UpdateJobDuration.Record(ctx, durationSeconds, attribute.String("kind", kind))
	}
	if PendingJobs != nil {
		PendingJobs.Dec(ctx)
	}
}

// RecordJobFailed records one failed update job attempt
func RecordJobFailed(ctx context.Context, kind string, exhausted bool) {
	if UpdatesFailed != nil {
		UpdatesFailed.Inc(ctx, attribute.String("kind", kind))
	}
	if exhausted {
		if UpdatesExhausted != nil {
			UpdatesExhausted.Inc(ctx, attribute.String("kind", kind))
		}
		if PendingJobs != nil {
			PendingJobs.Dec(ctx)
		}
	}
}

// RecordTriggerMatch records one trigger evaluation outcome
func RecordTriggerMatch(ctx context.Context, kind string, notified bool, suppressedBy string) {
	if TriggersMatched != nil {
		TriggersMatched.Inc(ctx, attribute.String("kind", kind))
	}
	if notified {
		if NotificationsSent != nil {
			NotificationsSent.Inc(ctx, attribute.String("kind", kind))
		}
		return
	}
	if NotificationsSuppressed != nil {
		NotificationsSuppressed.Inc(ctx,
			attribute.String("kind", kind),
			attribute.String("gate", suppressedBy),
		)
	}
}

// RecordGenerateDuration records one platform generation call
func RecordGenerateDuration(ctx context.Context, platform string, durationSeconds float64) {
	if GenerateDuration != nil {
		GenerateDuration.Record(ctx, durationSeconds, attribute.String("platform", platform))
	}
}
