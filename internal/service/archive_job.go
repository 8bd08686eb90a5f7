package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

type ledgerArchiver interface {
	Archive(ctx context.Context) (domain.ArchiveResult, error)
}

// ArchiveJob exports every ledger to object storage, either once or on a
// cron schedule.
type ArchiveJob struct {
	archiver ledgerArchiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(archiver ledgerArchiver, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver: archiver,
		logger:   logger.With(slog.String("component", "archive_job")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes a single archive run.
func (j *ArchiveJob) Run(ctx context.Context) (domain.ArchiveResult, error) {
	start := j.now()
	res, err := j.archiver.Archive(ctx)
	if err != nil {
		return res, fmt.Errorf("archive_job: %w", err)
	}
	j.logger.InfoContext(ctx, "archive run complete",
		slog.Int("accounts", res.Accounts),
		slog.Int("orders", res.Orders),
		slog.Int("objects", len(res.Paths)),
		slog.Duration("took", j.now().Sub(start)),
	)
	return res, nil
}

// RunCron runs the job on a standard 5-field cron schedule
// ("minute hour day-of-month month day-of-week", UTC) until ctx is
// cancelled. A failed run is logged and the schedule continues.
func (j *ArchiveJob) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseCron(expr)
	if err != nil {
		return fmt.Errorf("archive_job: %w", err)
	}
	j.logger.InfoContext(ctx, "archive schedule started", slog.String("cron", expr))

	for {
		next, err := sched.Next(j.now())
		if err != nil {
			return fmt.Errorf("archive_job: %w", err)
		}
		wait := next.Sub(j.now())
		j.logger.DebugContext(ctx, "archive waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.InfoContext(ctx, "archive schedule stopped")
			return nil
		case <-timer.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one field of a cron expression. A nil set is a
// wildcard.
type cronField map[int]bool

func (f cronField) matches(v int) bool {
	return f == nil || f[v]
}

// CronSchedule is a parsed 5-field cron expression.
type CronSchedule struct {
	minute, hour, dom, month, dow cronField
}

var cronBounds = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, 0 = Sunday
}

// ParseCron parses expr. Each field accepts "*", a number, a range "a-b",
// a step "*/n" or "a-b/n", and comma-separated lists of those.
func ParseCron(expr string) (CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return CronSchedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(fields))
	}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return CronSchedule{}, fmt.Errorf("cron %q: field %d: %w", expr, i+1, err)
		}
		parsed[i] = cf
	}
	return CronSchedule{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	out := make(cronField)
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q", stepStr)
			}
			step = n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid value %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("invalid value %q", b)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", rng)
			}
			from = v
			if !hasStep {
				to = v
			}
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

// matches follows cron's day rule: when both day-of-month and day-of-week
// are restricted, either one matching is enough.
func (c CronSchedule) matches(t time.Time) bool {
	if !c.minute.matches(t.Minute()) || !c.hour.matches(t.Hour()) || !c.month.matches(int(t.Month())) {
		return false
	}
	dom, dow := c.dom.matches(t.Day()), c.dow.matches(int(t.Weekday()))
	if c.dom != nil && c.dow != nil {
		return dom || dow
	}
	return dom && dow
}

// Next returns the first minute strictly after after that matches the
// schedule, searching up to one year ahead.
func (c CronSchedule) Next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within one year")
}
