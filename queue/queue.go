package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"paysync-backend/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Verdict is what a handler reports back for one delivery.
type Verdict int

const (
	VerdictOk Verdict = iota
	VerdictRetry
	VerdictDeadLetter
)

// Result pairs a verdict with a reason for the retry/dead-letter paths.
type Result struct {
	Verdict Verdict
	Reason  string
}

func Ok() Result                      { return Result{Verdict: VerdictOk} }
func Retry(reason string) Result      { return Result{Verdict: VerdictRetry, Reason: reason} }
func DeadLetter(reason string) Result { return Result{Verdict: VerdictDeadLetter, Reason: reason} }

// Handler processes one delivered job. It may be called more than once for
// the same job (at-least-once), concurrently with other jobs, and in any
// order relative to other jobs for the same payment.
type Handler func(ctx context.Context, job models.QueueJob) Result

// Options tunes one named queue.
type Options struct {
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	Visibility   time.Duration // in-flight jobs older than this are reclaimed
	PollInterval time.Duration // idle wait between claim attempts
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 5 * time.Minute
	}
	if o.Visibility <= 0 {
		o.Visibility = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// Queue is a durable, at-least-once work queue over a Postgres table.
// Pending rows are claimed with FOR UPDATE SKIP LOCKED so concurrent
// workers never double-claim; rows survive restarts, and a crashed worker's
// in-flight row is reclaimed after the visibility timeout. Ordering is best
// effort only — consumers must not rely on it, even within one key.
type Queue struct {
	db   *gorm.DB
	name string
	opts Options
	log  *zap.Logger
	wg   sync.WaitGroup
}

func New(db *gorm.DB, name string, opts Options, log *zap.Logger) *Queue {
	opts.applyDefaults()
	return &Queue{db: db, name: name, opts: opts, log: log}
}

// Enqueue persists a job. The payload is marshalled to jsonb; the job is
// immediately eligible for delivery.
func (q *Queue) Enqueue(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	job := models.QueueJob{
		JobID:   uuid.NewString(),
		Queue:   q.name,
		Status:  models.JobPending,
		RunAt:   time.Now().UTC(),
		Payload: raw,
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.name, err)
	}
	return nil
}

// Start launches the worker pool and the reclaimer. It returns immediately;
// cancel ctx and call Wait to drain.
func (q *Queue) Start(ctx context.Context, handler Handler) {
	for i := 0; i < q.opts.Concurrency; i++ {
		q.wg.Add(1)
		go func(n int) {
			defer q.wg.Done()
			q.workerLoop(ctx, n, handler)
		}(i)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.reclaimLoop(ctx)
	}()
}

// Wait blocks until every worker has finished its current job and exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) workerLoop(ctx context.Context, n int, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, ok, err := q.claim(ctx)
		if err != nil {
			q.log.Error("claim failed", zap.String("queue", q.name), zap.Error(err))
			ok = false
		}
		if !ok {
			select {
			case <-time.After(q.opts.PollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		res := handler(ctx, job)
		if err := q.settle(ctx, job, res); err != nil {
			// Settling failed (e.g. DB blip). The row stays in_flight and
			// the reclaimer will redeliver it after the visibility timeout.
			q.log.Error("settle failed, job will be redelivered",
				zap.String("queue", q.name),
				zap.String("job_id", job.JobID),
				zap.Error(err),
			)
		}
	}
}

// claim atomically picks the oldest eligible pending job and marks it
// in-flight. SKIP LOCKED keeps concurrent claimers from serializing on, or
// double-claiming, the same row.
func (q *Queue) claim(ctx context.Context) (models.QueueJob, bool, error) {
	var job models.QueueJob
	found := false
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ? AND status = ? AND run_at <= ?", q.name, models.JobPending, time.Now().UTC()).
			Order("id").
			Limit(1).
			Find(&job).Error
		if err != nil {
			return err
		}
		if job.ID == 0 {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.QueueJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":    models.JobInFlight,
				"locked_at": &now,
				"attempts":  gorm.Expr("attempts + 1"),
			}).Error; err != nil {
			return err
		}
		job.Status = models.JobInFlight
		job.LockedAt = &now
		job.Attempts++
		found = true
		return nil
	})
	return job, found, err
}

// disposition is the durable follow-up decided for one handler result.
type disposition struct {
	discard bool             // Ok: the row is deleted
	status  models.JobStatus // pending (retry) or dead
	delay   time.Duration    // retry only: how far out run_at moves
}

// decide maps a handler verdict onto the job's next durable state. Retry
// honors the attempt ceiling: at or beyond it the job dead-letters instead
// of going back into rotation. Pure so the disposition table is testable
// without a database.
func decide(res Result, attempts int, o Options) disposition {
	switch res.Verdict {
	case VerdictOk:
		return disposition{discard: true}
	case VerdictDeadLetter:
		return disposition{status: models.JobDead}
	default: // VerdictRetry
		if attempts >= o.MaxAttempts {
			return disposition{status: models.JobDead}
		}
		return disposition{
			status: models.JobPending,
			delay:  backoffDelay(o.BackoffBase, o.BackoffCap, attempts),
		}
	}
}

// settle applies the handler's verdict to the claimed row.
func (q *Queue) settle(ctx context.Context, job models.QueueJob, res Result) error {
	d := decide(res, job.Attempts, q.opts)
	db := q.db.WithContext(ctx)

	if d.discard {
		return db.Delete(&models.QueueJob{}, job.ID).Error
	}

	if d.status == models.JobDead {
		if res.Verdict == VerdictDeadLetter {
			q.log.Warn("job dead-lettered",
				zap.String("queue", q.name),
				zap.String("job_id", job.JobID),
				zap.String("reason", res.Reason),
			)
		} else {
			q.log.Warn("job exceeded attempt ceiling, dead-lettered",
				zap.String("queue", q.name),
				zap.String("job_id", job.JobID),
				zap.Int("attempts", job.Attempts),
				zap.String("reason", res.Reason),
			)
		}
	}

	updates := map[string]any{
		"status":     d.status,
		"last_error": truncateReason(res.Reason),
		"locked_at":  nil,
	}
	if d.status == models.JobPending {
		updates["run_at"] = time.Now().UTC().Add(d.delay)
	}
	return db.Model(&models.QueueJob{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
}

// reclaimLoop returns in-flight jobs whose worker died to pending. The
// attempt already counted when the job was claimed, so a crash-looping job
// still hits the ceiling.
func (q *Queue) reclaimLoop(ctx context.Context) {
	interval := q.opts.Visibility / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-q.opts.Visibility)
			res := q.db.WithContext(ctx).Model(&models.QueueJob{}).
				Where("queue = ? AND status = ? AND locked_at < ?", q.name, models.JobInFlight, cutoff).
				Updates(map[string]any{
					"status":    models.JobPending,
					"run_at":    time.Now().UTC(),
					"locked_at": nil,
				})
			if res.Error != nil {
				q.log.Error("reclaim failed", zap.String("queue", q.name), zap.Error(res.Error))
				continue
			}
			if res.RowsAffected > 0 {
				q.log.Warn("reclaimed stuck jobs",
					zap.String("queue", q.name),
					zap.Int64("count", res.RowsAffected),
				)
			}
		}
	}
}

// backoffDelay is exponential in the attempt number, capped.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// ErrJobNotFound is returned by the dead-letter admin operations.
var ErrJobNotFound = errors.New("queue: job not found")

// DeadLetters lists dead jobs for inspection, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit, offset int) ([]models.QueueJob, int64, error) {
	var total int64
	base := q.db.WithContext(ctx).Model(&models.QueueJob{}).
		Where("queue = ? AND status = ?", q.name, models.JobDead)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var jobs []models.QueueJob
	err := q.db.WithContext(ctx).
		Where("queue = ? AND status = ?", q.name, models.JobDead).
		Order("updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error
	return jobs, total, err
}

// Requeue puts a dead job back into rotation with a fresh attempt budget.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	res := q.db.WithContext(ctx).Model(&models.QueueJob{}).
		Where("queue = ? AND job_id = ? AND status = ?", q.name, jobID, models.JobDead).
		Updates(map[string]any{
			"status":     models.JobPending,
			"run_at":     time.Now().UTC(),
			"attempts":   0,
			"last_error": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteDead discards a dead job permanently.
func (q *Queue) DeleteDead(ctx context.Context, jobID string) error {
	res := q.db.WithContext(ctx).
		Where("queue = ? AND job_id = ? AND status = ?", q.name, jobID, models.JobDead).
		Delete(&models.QueueJob{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func truncateReason(s string) string {
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
