package services_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"kantin/internal/domain"
	"kantin/internal/repos"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func user(t *testing.T, db *sqlx.DB, id string) *domain.User {
	t.Helper()
	u, err := repos.NewUserRepo(db).ByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
