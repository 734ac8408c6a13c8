package helpers

import (
	"testing"

	"github.com/xiaot623/gogo/orchestrator/internal/repository"
)

// NewTestSQLiteStore returns an in-memory Store cleaned up at test end.
func NewTestSQLiteStore(t *testing.T) *repository.Store {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
