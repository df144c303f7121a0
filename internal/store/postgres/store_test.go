package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/objimport/internal/config"
	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/store/storetest"
)

// testPool connects to TEST_DATABASE_URL or skips the test.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, config.StoreConfig{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := New(pool, nil).Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `TRUNCATE saved_objects, import_history`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestStore(t *testing.T) {
	pool := testPool(t)
	storetest.Run(t, func(t *testing.T, reg *core.TypeRegistry) storetest.Store {
		truncate(t, pool)
		return New(pool, reg)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := testPool(t)
	s := New(pool, nil)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped", errors.Join(errors.New("write"), &pgconn.PgError{Code: "23505"}), true},
		{"other code", &pgconn.PgError{Code: "40P01"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpSection(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;"
	if got := upSection(in); got != "\nCREATE TABLE a (x INT);\n" {
		t.Errorf("upSection = %q", got)
	}
}
