package postgres

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/unillm/unillm/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if a container runtime is not available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("unillm_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(store.Close)

	return store
}

func makeRecord(subject, model string, prompt, completion int) *storage.UsageRecord {
	return &storage.UsageRecord{
		Subject:          subject,
		ModelID:          model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		CreatedAt:        time.Now(),
	}
}

func TestPostgres_SaveAndTotals(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.SaveUsage(ctx, makeRecord("alice", "deepseek/chat", 10, 20)); err != nil {
			t.Fatalf("SaveUsage failed: %v", err)
		}
	}
	if err := store.SaveUsage(ctx, makeRecord("bob", "aliyun/qwen", 5, 5)); err != nil {
		t.Fatalf("SaveUsage failed: %v", err)
	}

	totals, err := store.TotalsByModel(ctx)
	if err != nil {
		t.Fatalf("TotalsByModel failed: %v", err)
	}

	got := totals["deepseek/chat"]
	if got.Requests != 3 {
		t.Errorf("Requests = %d, want 3", got.Requests)
	}
	if got.PromptTokens != 30 || got.CompletionTokens != 60 || got.TotalTokens != 90 {
		t.Errorf("token totals = %+v", got)
	}
	if totals["aliyun/qwen"].Requests != 1 {
		t.Errorf("aliyun/qwen requests = %d, want 1", totals["aliyun/qwen"].Requests)
	}
}

func TestPostgres_RecentOrdering(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := makeRecord("u", fmt.Sprintf("model-%d", i), 1, 1)
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.SaveUsage(ctx, rec); err != nil {
			t.Fatalf("SaveUsage failed: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d records, want 3", len(recent))
	}
	want := []string{"model-4", "model-3", "model-2"}
	for i, rec := range recent {
		if rec.ModelID != want[i] {
			t.Errorf("recent[%d] = %s, want %s", i, rec.ModelID, want[i])
		}
	}
}

func TestPostgres_MigrationsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate run failed: %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_Closed(t *testing.T) {
	store := setupTestDB(t)
	store.Close()

	if err := store.SaveUsage(context.Background(), makeRecord("u", "m", 1, 1)); err != storage.ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
