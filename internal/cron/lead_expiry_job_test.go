package cron

import (
	"context"
	"testing"
	"time"
)

type stubExpirer struct {
	perCall []int
	calls   int
}

func (s *stubExpirer) ExpireStaleLeads(_ context.Context, _ time.Duration, _ int) (int, error) {
	n := 0
	if s.calls < len(s.perCall) {
		n = s.perCall[s.calls]
	}
	s.calls++
	return n, nil
}

func TestLeadExpiryJobDrainsAllBatches(t *testing.T) {
	// A full first batch means more leads may remain; the job keeps going
	// until a short batch comes back.
	expirer := &stubExpirer{perCall: []int{leadExpiryBatchSize, 40}}
	job, err := NewLeadExpiryJob(LeadExpiryJobParams{
		Logger:      newTestLogger(),
		Attribution: expirer,
		LeadTTL:     720 * time.Hour,
		Interval:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", expirer.calls)
	}
}

func TestLeadExpiryJobRequiresTTL(t *testing.T) {
	_, err := NewLeadExpiryJob(LeadExpiryJobParams{
		Logger:      newTestLogger(),
		Attribution: &stubExpirer{},
	})
	if err == nil {
		t.Fatal("expected error for missing ttl")
	}
}
