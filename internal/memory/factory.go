package memory

import (
	"context"
	"strings"
)

// NewProfileStore creates a postgres-backed store when configured, otherwise
// the in-process default.
func NewProfileStore(ctx context.Context, databaseURL string) (ProfileStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryProfileStore(), nil
	}
	return NewPostgresProfileStore(ctx, databaseURL)
}
