//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("scores"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return dsn
}

func TestRemoteStoreAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	s, err := NewRemoteStore(startPostgres(t), 5*time.Second)
	if err != nil {
		t.Fatalf("new remote store: %v", err)
	}
	defer s.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	for i, rec := range []ScoreRecord{
		{PlayerName: "ann", Score: 50},
		{PlayerName: "bob", Score: 80},
		{PlayerName: "cid", Score: 80},
		{PlayerName: "dee", Score: 30},
	} {
		rec.RecordedAt = base.Add(time.Duration(i) * time.Second)
		if _, err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %+v: %v", rec, err)
		}
	}

	top, err := s.QueryOrderedDescending(ctx, 10)
	if err != nil {
		t.Fatalf("ordered: %v", err)
	}
	names := make([]string, 0, len(top))
	for _, r := range top {
		names = append(names, r.PlayerName)
	}
	if diff := cmp.Diff([]string{"bob", "cid", "ann", "dee"}, names); diff != "" {
		t.Errorf("leaderboard order mismatch (-want +got):\n%s", diff)
	}
	if !top[0].RecordedAt.Equal(base.Add(time.Second)) {
		t.Errorf("recorded_at round trip: expected %v, got %v", base.Add(time.Second), top[0].RecordedAt)
	}

	n, err := s.QueryCountGreaterThan(ctx, 50)
	if err != nil || n != 2 {
		t.Errorf("expected 2 scores above 50, got %d err=%v", n, err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := s.QueryCountGreaterThan(ctx, -1); n != 0 {
		t.Errorf("expected empty table after clear, got %d", n)
	}
}
