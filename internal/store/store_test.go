package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("posepipe_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	start := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	older := RunRecord{
		ID: "run-1", SourceID: "src-a", Input: "/tmp/a.mp4", Output: "/tmp/out1.mp4",
		Transform: "identity", Policy: "degrade", Workers: 4, Width: 64, Height: 48, FrameRate: 30,
		Total: 10, Completed: 10, Written: 10, Status: "complete",
		StartedAt: start, EndedAt: start.Add(time.Second),
	}
	newer := RunRecord{
		ID: "run-2", SourceID: "src-a", Input: "/tmp/a.mp4", Output: "/tmp/out2.mp4",
		Transform: "pose", Policy: "skip", Workers: 2, Width: 64, Height: 48, FrameRate: 30,
		Total: 10, Completed: 8, Failed: 2, Written: 10, Status: "complete",
		StartedAt: start.Add(10 * time.Second), EndedAt: start.Add(12 * time.Second),
		Failures: map[int]string{7: "engine timeout", 3: "bad tensor"},
	}

	if err := s.RecordRun(ctx, older); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := s.RecordRun(ctx, newer); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	// Same ID twice violates the primary key and must not leave partial rows
	if err := s.RecordRun(ctx, older); err == nil {
		t.Error("Expected duplicate run ID to fail")
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("Expected newest run first, got %s", runs[0].ID)
	}
	if runs[0].Failed != 2 || runs[0].Input != "/tmp/a.mp4" {
		t.Errorf("Unexpected run row: %+v", runs[0])
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns(limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 run with limit, got %d", len(limited))
	}

	failures, err := s.GetRunFailures(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetRunFailures failed: %v", err)
	}
	if len(failures) != 2 || failures[0].Index != 3 || failures[1].Reason != "engine timeout" {
		t.Errorf("Unexpected failures: %+v", failures)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx, 0); err == nil {
		t.Error("Expected ListRuns to fail after Reset dropped the tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
