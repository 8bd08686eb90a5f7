package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

type stubArchiver struct {
	calls int
	err   error
}

func (s *stubArchiver) Archive(context.Context) (domain.ArchiveResult, error) {
	s.calls++
	if s.err != nil {
		return domain.ArchiveResult{}, s.err
	}
	return domain.ArchiveResult{Accounts: 2, Orders: 5, Paths: []string{"a", "b"}}, nil
}

func TestArchiveJobRun(t *testing.T) {
	arch := &stubArchiver{}
	job := NewArchiveJob(arch, discardLogger())

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Orders != 5 || arch.calls != 1 {
		t.Errorf("res = %+v calls = %d", res, arch.calls)
	}

	arch.err = errors.New("bucket gone")
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCronNext(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 7, 30, 0, time.UTC) // Wednesday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 4, 10, 8, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)},
		{"30 9-17 * * 1-5", time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 0", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)},
		{"5,45 10 * * *", time.Date(2026, 3, 4, 10, 45, 0, 0, time.UTC)},
		// Day-of-month and day-of-week both restricted: either matches.
		{"0 0 15 * 5", time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
		{"0 0 5 * 0", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"0 0 1-7 * *", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			got, err := sched.Next(base)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCronRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "x * * * *"} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) succeeded", expr)
		}
	}
}

func TestArchiveJobRunCronStops(t *testing.T) {
	job := NewArchiveJob(&stubArchiver{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.RunCron(ctx, "0 3 * * *"); err != nil {
		t.Fatalf("RunCron = %v", err)
	}
	if err := job.RunCron(context.Background(), "bad"); err == nil {
		t.Fatal("expected parse error")
	}
}
