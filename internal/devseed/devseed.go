// Package devseed writes development profile records for the dev auth accounts.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/opsdesk-go/internal/adapters/devauth"
	"github.com/target/opsdesk-go/internal/data"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

// ProfileWriter is the subset of the profile store seeding needs.
type ProfileWriter interface {
	Get(ctx context.Context, c domainauth.Collection, id string) (domainauth.ProfileRecord, error)
	Create(ctx context.Context, c domainauth.Collection, id string, fields map[string]any) error
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Profiles ProfileWriter
}

// NewServices constructs the seeding dependencies backed by the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{Profiles: data.NewProfileRepo(db, data.ProfileRepoConfig{})}
}

// Record is one seeded profile document.
type Record struct {
	Collection domainauth.Collection
	ID         string
	Doc        map[string]any
}

// Records returns the development records. Ids match the dev auth provider's
// deterministic user ids so provider logins resolve to them. The legacy
// synonyms are used on purpose so local runs exercise field fallbacks.
func Records() []Record {
	return []Record{
		{
			Collection: domainauth.CollectionMember,
			ID:         devauth.UserID("admin@opsdesk.dev"),
			Doc:        map[string]any{"email": "admin@opsdesk.dev", "name": "Dev Admin", "role": "admin"},
		},
		{
			Collection: domainauth.CollectionMember,
			ID:         devauth.UserID("manager@opsdesk.dev"),
			Doc: map[string]any{
				"emailAddress":     "manager@opsdesk.dev",
				"displayName":      "Dev Manager",
				"resourceRoleType": "Salon Manager",
				"phoneNumber":      "+1 555 0100",
			},
		},
		{
			Collection: domainauth.CollectionMember,
			ID:         "stylist-0001",
			Doc: map[string]any{
				"email":       "stylist@opsdesk.dev",
				"name":        "Dev Stylist",
				"userRole":    "member",
				"devPassword": "stylist",
				"imageUrl":    "https://images.opsdesk.dev/stylist.png",
			},
		},
		{
			Collection: domainauth.CollectionClient,
			ID:         "client-0001",
			Doc: map[string]any{
				"email":      "client@opsdesk.dev",
				"clientName": "Dev Client",
				"role":       "client",
				"password":   "client",
			},
		},
	}
}

// Run seeds every missing record. Existing records are left untouched so
// operator edits survive restarts.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if svcs.Profiles == nil {
		return errors.New("profile store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	failures := 0
	for _, rec := range Records() {
		created, err := seedRecord(ctx, svcs.Profiles, rec)
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed profile record",
				"collection", rec.Collection, "record_id", rec.ID, "error", err)
			failures++
			continue
		}
		msg := "profile record already exists"
		if created {
			msg = "seeded profile record"
		}
		logger.InfoContext(ctx, msg, "collection", rec.Collection, "record_id", rec.ID)
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedRecord(ctx context.Context, store ProfileWriter, rec Record) (bool, error) {
	_, err := store.Get(ctx, rec.Collection, rec.ID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ports.ErrRecordNotFound):
		return false, err
	}
	if err = store.Create(ctx, rec.Collection, rec.ID, rec.Doc); err != nil {
		return false, err
	}
	return true, nil
}
