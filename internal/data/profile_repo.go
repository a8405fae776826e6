package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/opsdesk-go/internal/data/pgxutil"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
	"github.com/target/opsdesk-go/internal/ports"
)

// ProfileChangesChannel is the NOTIFY channel the profile tables publish on.
const ProfileChangesChannel = "profile_changes"

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// profileTables maps collections to their backing tables.
var profileTables = map[domainauth.Collection]string{
	domainauth.CollectionMember: "member_records",
	domainauth.CollectionClient: "client_records",
}

// ProfileRepoConfig holds configuration options for the profile repository.
type ProfileRepoConfig struct {
	Logger *slog.Logger
	// ListenTimeout bounds how long Subscribe waits for LISTEN to be established.
	ListenTimeout time.Duration
}

// ProfileRepo stores profile records as JSONB documents in Postgres, one table
// per collection, and streams per-document changes using LISTEN/NOTIFY.
type ProfileRepo struct {
	DB     *sql.DB
	cfg    ProfileRepoConfig
	logger *slog.Logger
}

// NewProfileRepo creates a ProfileRepo.
func NewProfileRepo(db *sql.DB, cfg ProfileRepoConfig) *ProfileRepo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenTimeout <= 0 {
		cfg.ListenTimeout = 5 * time.Second
	}
	return &ProfileRepo{DB: db, cfg: cfg, logger: logger.With("component", "profile_repo")}
}

func tableFor(c domainauth.Collection) (string, error) {
	t, ok := profileTables[c]
	if !ok {
		return "", apperrors.ValidationField("collection", fmt.Sprintf("unknown collection %q", c))
	}
	return pgx.Identifier{t}.Sanitize(), nil
}

// Get reads one document by id.
func (r *ProfileRepo) Get(ctx context.Context, c domainauth.Collection, id string) (domainauth.ProfileRecord, error) {
	table, err := tableFor(c)
	if err != nil {
		return domainauth.ProfileRecord{}, err
	}
	var raw []byte
	err = r.DB.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE id = $1`, id).Scan(&raw)
	return r.scanRecord(c, id, raw, err)
}

// FindByEmail returns the first document (by id) whose email matches.
func (r *ProfileRepo) FindByEmail(ctx context.Context, c domainauth.Collection, email string) (domainauth.ProfileRecord, error) {
	table, err := tableFor(c)
	if err != nil {
		return domainauth.ProfileRecord{}, err
	}
	var (
		id  string
		raw []byte
	)
	err = r.DB.QueryRowContext(ctx,
		`SELECT id, data FROM `+table+` WHERE email = $1 ORDER BY id LIMIT 1`,
		domainauth.NormalizeEmail(email),
	).Scan(&id, &raw)
	return r.scanRecord(c, id, raw, err)
}

func (r *ProfileRepo) scanRecord(c domainauth.Collection, id string, raw []byte, err error) (domainauth.ProfileRecord, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.ProfileRecord{}, ports.ErrRecordNotFound
	}
	if err != nil {
		return domainauth.ProfileRecord{}, fmt.Errorf("query %s: %w", c, apperrors.MapDBError(err))
	}
	data := map[string]any{}
	if err = json.Unmarshal(raw, &data); err != nil {
		return domainauth.ProfileRecord{}, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return domainauth.ProfileRecord{ID: id, Collection: c, Data: data}, nil
}

// Merge shallow-merges fields into an existing document. It reports false
// without error when the document does not exist.
func (r *ProfileRepo) Merge(ctx context.Context, c domainauth.Collection, id string, fields map[string]any) (bool, error) {
	table, err := tableFor(c)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("encode fields: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE `+table+` SET data = data || $2::jsonb WHERE id = $1`, id, payload)
	if err != nil {
		return false, fmt.Errorf("merge %s/%s: %w", c, id, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("merge %s/%s: %w", c, id, err)
	}
	return n > 0, nil
}

// Create inserts a document, merging into it when the id already exists.
func (r *ProfileRepo) Create(ctx context.Context, c domainauth.Collection, id string, fields map[string]any) error {
	return r.write(ctx, c, id, fields, `
		INSERT INTO %[1]s (id, data) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET data = %[1]s.data || EXCLUDED.data`)
}

// Replace overwrites a document, creating it when missing.
func (r *ProfileRepo) Replace(ctx context.Context, c domainauth.Collection, id string, doc map[string]any) error {
	return r.write(ctx, c, id, doc, `
		INSERT INTO %[1]s (id, data) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`)
}

func (r *ProfileRepo) write(ctx context.Context, c domainauth.Collection, id string, doc map[string]any, query string) error {
	if id == "" {
		return apperrors.ValidationField("id", "record id is required")
	}
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err = r.DB.ExecContext(ctx, fmt.Sprintf(query, table), id, payload); err != nil {
		return fmt.Errorf("write %s/%s: %w", c, id, apperrors.MapDBError(err))
	}
	return nil
}

// Delete removes a document. It reports whether a row was deleted.
func (r *ProfileRepo) Delete(ctx context.Context, c domainauth.Collection, id string) (bool, error) {
	table, err := tableFor(c)
	if err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", c, id, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	return n > 0, nil
}

// List returns up to limit documents ordered by id.
func (r *ProfileRepo) List(ctx context.Context, c domainauth.Collection, limit int) ([]domainauth.ProfileRecord, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var out []domainauth.ProfileRecord
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, `SELECT id, data FROM `+table+` ORDER BY id LIMIT $1`, limit)
		if qErr != nil {
			return qErr
		}
		out, qErr = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domainauth.ProfileRecord, error) {
			rec := domainauth.ProfileRecord{Collection: c, Data: map[string]any{}}
			scanErr := row.Scan(&rec.ID, &rec.Data)
			return rec, scanErr
		})
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, apperrors.MapDBError(err))
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *ProfileRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

// profileChange is the NOTIFY payload emitted by the profile table triggers.
type profileChange struct {
	Collection domainauth.Collection `json:"collection"`
	ID         string                `json:"id"`
	Op         string                `json:"op"`
}

type profileSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the listener and waits for it to exit. It must not be called
// from inside the subscription callback.
func (s *profileSubscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe holds a dedicated connection LISTENing on the change channel and
// invokes fn for every change to the document. The current document, if any,
// is delivered once the listener is established. Deliveries are sequential.
func (r *ProfileRepo) Subscribe(
	ctx context.Context,
	c domainauth.Collection,
	id string,
	fn func(domainauth.Snapshot),
) (ports.Subscription, error) {
	if _, err := tableFor(c); err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &profileSubscription{cancel: cancel, done: make(chan struct{})}
	ready := make(chan error, 1)

	go func() {
		defer close(sub.done)
		err := pgxutil.WithPgxConn(listenCtx, r.DB, func(conn *pgx.Conn) error {
			return r.listen(listenCtx, conn, listenTarget{collection: c, id: id}, ready, fn)
		})
		select {
		case ready <- err:
		default:
		}
		if err != nil && listenCtx.Err() == nil {
			r.logger.Error("profile listener stopped", "collection", c, "record_id", id, "error", err)
		}
	}()

	timer := time.NewTimer(r.cfg.ListenTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("subscribe %s/%s: %w", c, id, err)
		}
	case <-timer.C:
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s/%s: timed out waiting for listener", c, id)
	case <-ctx.Done():
		_ = sub.Close()
		return nil, ctx.Err()
	}
	return sub, nil
}

type listenTarget struct {
	collection domainauth.Collection
	id         string
}

func (r *ProfileRepo) listen(
	ctx context.Context,
	conn *pgx.Conn,
	target listenTarget,
	ready chan<- error,
	fn func(domainauth.Snapshot),
) error {
	channel := pgx.Identifier{ProfileChangesChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", ProfileChangesChannel, err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			r.logger.Debug("unlisten failed", "error", err)
		}
	}()
	ready <- nil

	if rec, err := r.Get(ctx, target.collection, target.id); err == nil {
		fn(domainauth.Snapshot{Record: rec})
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var change profileChange
		if err = json.Unmarshal([]byte(n.Payload), &change); err != nil {
			r.logger.Warn("ignoring malformed profile notification", "payload", n.Payload, "error", err)
			continue
		}
		if change.Collection != target.collection || change.ID != target.id {
			continue
		}
		if change.Op == "DELETE" {
			fn(domainauth.Snapshot{Record: domainauth.ProfileRecord{ID: target.id, Collection: target.collection}, Deleted: true})
			continue
		}
		rec, err := r.Get(ctx, target.collection, target.id)
		switch {
		case errors.Is(err, ports.ErrRecordNotFound):
			fn(domainauth.Snapshot{Record: domainauth.ProfileRecord{ID: target.id, Collection: target.collection}, Deleted: true})
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("reload after profile change failed", "collection", target.collection, "record_id", target.id, "error", err)
		default:
			fn(domainauth.Snapshot{Record: rec})
		}
	}
}
