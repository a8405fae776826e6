package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"github.com/target/opsdesk-go/internal/testutil"
)

func TestProfileRepo_Integration_CRUD(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, ProfileRepoConfig{})

		_, err := repo.Get(ctx, domainauth.CollectionMember, "m-1")
		require.ErrorIs(t, err, ports.ErrRecordNotFound)

		require.NoError(t, repo.Create(ctx, domainauth.CollectionMember, "m-1", map[string]any{
			"email": "Ann@Acme.com", "role": "admin", "name": "Ann",
		}))

		rec, err := repo.Get(ctx, domainauth.CollectionMember, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "admin", rec.RawRole())
		assert.Equal(t, "Ann", rec.DisplayName())

		found, err := repo.FindByEmail(ctx, domainauth.CollectionMember, " ann@acme.com ")
		require.NoError(t, err)
		assert.Equal(t, "m-1", found.ID)

		_, err = repo.FindByEmail(ctx, domainauth.CollectionClient, "ann@acme.com")
		require.ErrorIs(t, err, ports.ErrRecordNotFound)

		ok, err := repo.Merge(ctx, domainauth.CollectionMember, "m-1", map[string]any{"phone": "555"})
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err = repo.Get(ctx, domainauth.CollectionMember, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "555", rec.Phone())
		assert.Equal(t, "admin", rec.RawRole())

		ok, err = repo.Merge(ctx, domainauth.CollectionClient, "m-1", map[string]any{"phone": "555"})
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.Replace(ctx, domainauth.CollectionMember, "m-1", map[string]any{"email": "ann@acme.com"}))
		rec, err = repo.Get(ctx, domainauth.CollectionMember, "m-1")
		require.NoError(t, err)
		assert.Empty(t, rec.RawRole())

		list, err := repo.List(ctx, domainauth.CollectionMember, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		deleted, err := repo.Delete(ctx, domainauth.CollectionMember, "m-1")
		require.NoError(t, err)
		assert.True(t, deleted)
	})
}

func TestProfileRepo_Integration_Subscribe(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, ProfileRepoConfig{})
		require.NoError(t, repo.Create(ctx, domainauth.CollectionClient, "c-1", map[string]any{
			"email": "cl@acme.com", "role": "client",
		}))

		snaps := make(chan domainauth.Snapshot, 8)
		sub, err := repo.Subscribe(ctx, domainauth.CollectionClient, "c-1", func(s domainauth.Snapshot) { snaps <- s })
		require.NoError(t, err)
		defer func() { _ = sub.Close() }()

		next := func() domainauth.Snapshot {
			select {
			case s := <-snaps:
				return s
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for snapshot")
				return domainauth.Snapshot{}
			}
		}

		initial := next()
		assert.Equal(t, "client", initial.Record.RawRole())

		// Changes to other documents are not delivered.
		require.NoError(t, repo.Create(ctx, domainauth.CollectionClient, "c-2", map[string]any{"role": "admin"}))

		_, err = repo.Merge(ctx, domainauth.CollectionClient, "c-1", map[string]any{"role": "manager"})
		require.NoError(t, err)
		updated := next()
		assert.Equal(t, "c-1", updated.Record.ID)
		assert.Equal(t, "manager", updated.Record.RawRole())

		_, err = repo.Delete(ctx, domainauth.CollectionClient, "c-1")
		require.NoError(t, err)
		gone := next()
		assert.True(t, gone.Deleted)

		require.NoError(t, sub.Close())
	})
}

func TestProfileRepo_UnknownCollection(t *testing.T) {
	repo := NewProfileRepo(nil, ProfileRepoConfig{})
	_, err := repo.Get(context.Background(), "other", "x")
	require.Error(t, err)
	_, err = repo.Subscribe(context.Background(), "other", "x", func(domainauth.Snapshot) {})
	require.Error(t, err)
}
