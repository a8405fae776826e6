package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
	"github.com/target/opsdesk-go/internal/observability/metrics"
	"github.com/target/opsdesk-go/internal/observability/statsd"
	"github.com/target/opsdesk-go/internal/ports"
)

// SessionDeps groups the collaborators a SessionManager orchestrates.
type SessionDeps struct {
	Provider  ports.CredentialProvider   // Required
	Resolver  *RoleResolver              // Required
	Fallback  *FallbackAuthenticator     // Optional: nil disables the fallback path
	Snapshots ports.SessionSnapshotStore // Optional: persists the active identity
}

// SessionConfig tunes SessionManager behavior.
type SessionConfig struct {
	// KeepSessionOnDelete keeps a session alive when its profile document is
	// deleted; the subscription simply stops. By default deletion logs the user out.
	KeepSessionOnDelete bool
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Deps    SessionDeps
	Config  SessionConfig
	Metrics statsd.Sink  // Optional
	Logger  *slog.Logger // Optional
}

// SessionManager owns the single current session: it runs the login state
// machine, holds the active identity and keeps it in sync with the profile
// store through one live subscription.
//
// All writes to the identity go through apply paths guarded by mu, so a live
// update can never interleave with Login or Logout into a torn identity.
type SessionManager struct {
	provider  ports.CredentialProvider
	resolver  *RoleResolver
	fallback  *FallbackAuthenticator
	store     ports.ProfileStore
	snapshots ports.SessionSnapshotStore
	cfg       SessionConfig
	metrics   statsd.Sink
	logger    *slog.Logger

	mu       sync.Mutex
	identity domainauth.Identity
	state    domainauth.SessionState
	// attempt increases at every Login, Register, Restore and Logout; a login
	// only applies its result while its captured attempt is still current.
	attempt uint64
	sub     ports.Subscription
	// subGen tags deliveries so callbacks from a replaced subscription are dropped.
	subGen   uint64
	watchers map[int]chan domainauth.Identity
	nextW    int

	// persistMu orders snapshot writes against deletes. Lock order is
	// persistMu before mu.
	persistMu sync.Mutex
}

// NewSessionManager constructs a SessionManager in the Idle state.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	if opts.Deps.Provider == nil {
		panic("CredentialProvider is required")
	}
	if opts.Deps.Resolver == nil {
		panic("RoleResolver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		provider:  opts.Deps.Provider,
		resolver:  opts.Deps.Resolver,
		fallback:  opts.Deps.Fallback,
		store:     opts.Deps.Resolver.store,
		snapshots: opts.Deps.Snapshots,
		cfg:       opts.Config,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "session_manager"),
		state:     domainauth.StateIdle,
		watchers:  make(map[int]chan domainauth.Identity),
	}
}

// Current returns a copy of the active identity, or the zero Identity when idle.
func (m *SessionManager) Current() domainauth.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// State returns the current login state.
func (m *SessionManager) State() domainauth.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsActive reports whether a session is active.
func (m *SessionManager) IsActive() bool {
	return m.State() == domainauth.StateActive
}

// Login authenticates against the credential provider and resolves the role
// from the profile store. Any failure on that path, including a provider login
// whose identity has no usable record, falls through to the fallback path.
func (m *SessionManager) Login(ctx context.Context, email, password string) (domainauth.Identity, error) {
	start := time.Now()
	addr := domainauth.NormalizeEmail(email)
	attempt := m.begin(domainauth.StateAuthenticating)

	id, primaryErr := m.loginWithProvider(ctx, attempt, addr, password)
	if primaryErr == nil {
		m.emitLogin(metrics.PathProvider, start, nil)
		return id, nil
	}
	if errors.Is(primaryErr, domainauth.ErrLoginSuperseded) {
		return domainauth.Identity{}, primaryErr
	}

	m.logger.InfoContext(ctx, "primary login failed",
		"error_kind", domainauth.KindOf(primaryErr), "attempt", attempt, "fallback_enabled", m.fallback != nil)

	if m.fallback == nil {
		m.fail(ctx, attempt)
		m.emitLogin(metrics.PathProvider, start, primaryErr)
		return domainauth.Identity{}, primaryErr
	}

	if !m.advance(attempt, domainauth.StateFallbackAuthenticating) {
		return domainauth.Identity{}, domainauth.ErrLoginSuperseded
	}
	id, role, err := m.fallback.Attempt(ctx, addr, password)
	if err != nil {
		m.fail(ctx, attempt)
		m.emitLogin(metrics.PathFallback, start, err)
		m.logger.WarnContext(ctx, "login failed", "error_kind", domainauth.KindOf(err), "attempt", attempt)
		return domainauth.Identity{}, err
	}
	id.Role = role

	if err = m.activate(ctx, attempt, id); err != nil {
		return domainauth.Identity{}, err
	}

	path := metrics.PathFallback
	if id.Source == domainauth.SourceSynthetic {
		path = metrics.PathSynthetic
	}
	m.emitLogin(path, start, nil)
	m.logger.InfoContext(ctx, "login succeeded", "path", path, "role", id.Role, "collection", id.Collection)
	return id, nil
}

// loginWithProvider runs sign-in and role resolution. When the provider
// accepted the password but resolution failed, the provider session is signed
// out again so the fallback path never inherits it.
func (m *SessionManager) loginWithProvider(ctx context.Context, attempt uint64, email, password string) (domainauth.Identity, error) {
	sess, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return domainauth.Identity{}, domainauth.Wrap(domainauth.KindUnknown, "provider sign in", err)
	}

	if !m.advance(attempt, domainauth.StateRoleResolving) {
		return domainauth.Identity{}, domainauth.ErrLoginSuperseded
	}

	id, err := m.resolver.Resolve(ctx, sess.UserID, email)
	if err != nil {
		if !m.isCurrent(attempt) {
			return domainauth.Identity{}, domainauth.ErrLoginSuperseded
		}
		if soErr := m.provider.SignOut(ctx); soErr != nil {
			m.logger.WarnContext(ctx, "sign out after failed role resolution", "error", soErr)
		}
		return domainauth.Identity{}, err
	}

	id.ID = sess.UserID
	id.Source = domainauth.SourceProvider
	if id.Email == "" {
		id.Email = email
	}
	if err = m.activate(ctx, attempt, id); err != nil {
		return domainauth.Identity{}, err
	}
	m.logger.InfoContext(ctx, "login succeeded", "path", metrics.PathProvider, "role", id.Role, "collection", id.Collection)
	return id, nil
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Collection  domainauth.Collection
	Role        domainauth.Role
}

// Register creates a provider account, writes its profile record and activates
// the session through the normal role resolution path.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (domainauth.Identity, error) {
	start := time.Now()
	addr := domainauth.NormalizeEmail(in.Email)
	if addr == "" || !strings.Contains(addr, "@") {
		return domainauth.Identity{}, apperrors.ValidationField("email", "a valid email is required")
	}
	if in.Password == "" {
		return domainauth.Identity{}, apperrors.ValidationField("password", "password is required")
	}
	if !in.Collection.Valid() {
		return domainauth.Identity{}, apperrors.ValidationField("collection", fmt.Sprintf("unknown collection %q", in.Collection))
	}
	if !in.Role.Valid() {
		return domainauth.Identity{}, apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	attempt := m.begin(domainauth.StateAuthenticating)
	sess, err := m.provider.SignUp(ctx, addr, in.Password)
	if err != nil {
		m.fail(ctx, attempt)
		err = domainauth.Wrap(domainauth.KindUnknown, "provider sign up", err)
		m.emitLogin(metrics.PathRegister, start, err)
		return domainauth.Identity{}, err
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = addr
	}
	if err = m.store.Create(ctx, in.Collection, sess.UserID, newRecordFields(addr, name, in.Role)); err != nil {
		m.fail(ctx, attempt)
		err = domainauth.Wrap(domainauth.KindNetwork, "create profile record", err)
		if soErr := m.provider.SignOut(ctx); soErr != nil {
			err = errors.Join(err, fmt.Errorf("sign out: %w", soErr))
		}
		m.emitLogin(metrics.PathRegister, start, err)
		return domainauth.Identity{}, err
	}

	if !m.advance(attempt, domainauth.StateRoleResolving) {
		return domainauth.Identity{}, domainauth.ErrLoginSuperseded
	}
	id, err := m.resolver.Resolve(ctx, sess.UserID, addr)
	if err != nil {
		m.fail(ctx, attempt)
		if soErr := m.provider.SignOut(ctx); soErr != nil {
			err = errors.Join(err, fmt.Errorf("sign out: %w", soErr))
		}
		m.emitLogin(metrics.PathRegister, start, err)
		return domainauth.Identity{}, err
	}
	id.ID = sess.UserID
	id.Source = domainauth.SourceProvider
	if err = m.activate(ctx, attempt, id); err != nil {
		return domainauth.Identity{}, err
	}
	m.emitLogin(metrics.PathRegister, start, nil)
	return id, nil
}

func newRecordFields(email, name string, role domainauth.Role) map[string]any {
	fields := map[string]any{}
	for _, k := range domainauth.EmailWriteKeys {
		fields[k] = email
	}
	for _, k := range domainauth.DisplayNameWriteKeys {
		fields[k] = name
	}
	for _, k := range domainauth.RoleWriteKeys {
		fields[k] = role.StorageValue()
	}
	return fields
}

// Restore reactivates the identity persisted by a previous process. The role
// and profile fields are re-read from the store when the identity has a record.
// The snapshot carries no provider credentials, so a provider identity comes
// back as a record identity.
func (m *SessionManager) Restore(ctx context.Context) (domainauth.Identity, error) {
	if m.snapshots == nil {
		return domainauth.Identity{}, domainauth.ErrNotAuthenticated
	}
	start := time.Now()
	saved, err := m.snapshots.Load(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return domainauth.Identity{}, domainauth.ErrNotAuthenticated
		}
		return domainauth.Identity{}, fmt.Errorf("load session snapshot: %w", err)
	}

	if saved.Source == domainauth.SourceProvider {
		saved.Source = domainauth.SourceRecord
	}

	attempt := m.begin(domainauth.StateRoleResolving)
	if saved.HasRecord() {
		rec, getErr := m.store.Get(ctx, saved.Collection, saved.RecordID)
		switch {
		case getErr == nil:
			saved = m.refreshFromRecord(ctx, saved, rec)
		case errors.Is(getErr, ports.ErrRecordNotFound):
			m.fail(ctx, attempt)
			err = domainauth.Errorf(domainauth.KindUserNotFound, "restore session", "profile record %s is gone", saved.RecordID)
			m.emitLogin(metrics.PathRestore, start, err)
			return domainauth.Identity{}, err
		default:
			m.logger.WarnContext(ctx, "restore with stale profile; store unavailable", "error", getErr)
		}
	}

	if err = m.activate(ctx, attempt, saved); err != nil {
		return domainauth.Identity{}, err
	}
	m.emitLogin(metrics.PathRestore, start, nil)
	return saved, nil
}

// Logout signs out of the provider, stops the live subscription and clears the
// session. The in-memory session is cleared before any network call. It is
// safe to call in any state.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.attempt++
	sub := m.detachLocked()
	m.clearLocked()
	m.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscription: %w", err))
		}
	}
	if err := m.provider.SignOut(ctx); err != nil {
		errs = append(errs, fmt.Errorf("provider sign out: %w", err))
	}
	if err := m.deleteSnapshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("delete session snapshot: %w", err))
	}
	return errors.Join(errs...)
}

// Metadata returns provider session metadata for provider-backed sessions.
func (m *SessionManager) Metadata(ctx context.Context) (domainauth.Metadata, error) {
	id := m.Current()
	if id.IsZero() {
		return domainauth.Metadata{}, domainauth.ErrNotAuthenticated
	}
	if id.Source != domainauth.SourceProvider {
		return domainauth.Metadata{}, domainauth.ErrNoProviderSession
	}
	md, err := m.provider.Metadata(ctx)
	if err != nil {
		return domainauth.Metadata{}, fmt.Errorf("provider metadata: %w", err)
	}
	return md, nil
}

// Watch streams every applied identity change until ctx is done. A zero
// identity means the session ended. Slow readers only miss intermediate
// states; the most recent identity is always delivered.
func (m *SessionManager) Watch(ctx context.Context) <-chan domainauth.Identity {
	ch := make(chan domainauth.Identity, 8)

	m.mu.Lock()
	m.nextW++
	key := m.nextW
	m.watchers[key] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, key)
		m.mu.Unlock()
		close(ch)
	}()
	return ch
}

// begin starts a new attempt, superseding any in-flight one.
func (m *SessionManager) begin(state domainauth.SessionState) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	m.state = state
	return m.attempt
}

// advance moves a still-current attempt to state.
func (m *SessionManager) advance(attempt uint64, state domainauth.SessionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt != m.attempt {
		return false
	}
	m.state = state
	return true
}

func (m *SessionManager) isCurrent(attempt uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return attempt == m.attempt
}

// fail ends a still-current attempt: any previous session is torn down so no
// partial state survives a failed login.
func (m *SessionManager) fail(ctx context.Context, attempt uint64) {
	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		return
	}
	sub := m.detachLocked()
	hadSession := !m.identity.IsZero()
	m.clearLocked()
	m.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			m.logger.WarnContext(ctx, "close subscription", "error", err)
		}
	}
	if hadSession {
		if err := m.deleteSnapshot(ctx); err != nil {
			m.logger.WarnContext(ctx, "delete session snapshot", "error", err)
		}
	}
}

// activate installs id as the active session for a still-current attempt and
// starts the live subscription when the identity is backed by a record.
func (m *SessionManager) activate(ctx context.Context, attempt uint64, id domainauth.Identity) error {
	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "discarding superseded login result", "attempt", attempt)
		return domainauth.ErrLoginSuperseded
	}
	old := m.detachLocked()
	m.identity = id
	m.state = domainauth.StateActive
	m.subGen++
	gen := m.subGen
	m.notifyLocked()
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.WarnContext(ctx, "close previous subscription", "error", err)
		}
	}
	m.saveSnapshot(ctx, attempt)
	metrics.EmitSessionActive(m.metrics, id.Role)

	if id.HasRecord() {
		m.subscribe(ctx, gen, id)
	}
	return nil
}

// subscribe opens the live feed for id's record and installs it if gen is
// still the current generation.
func (m *SessionManager) subscribe(ctx context.Context, gen uint64, id domainauth.Identity) {
	sub, err := m.store.Subscribe(context.WithoutCancel(ctx), id.Collection, id.RecordID, func(snap domainauth.Snapshot) {
		m.applySnapshot(gen, snap)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "live profile subscription failed; session continues without updates",
			"collection", id.Collection, "record_id", id.RecordID, "error", err)
		return
	}

	m.mu.Lock()
	if gen != m.subGen {
		m.mu.Unlock()
		if cerr := sub.Close(); cerr != nil {
			m.logger.WarnContext(ctx, "close superseded subscription", "error", cerr)
		}
		return
	}
	m.sub = sub
	m.mu.Unlock()
	m.logger.DebugContext(ctx, "live profile subscription started", "collection", id.Collection, "record_id", id.RecordID)
}

// applySnapshot handles one live delivery. Deliveries from a replaced or
// closed subscription are ignored.
func (m *SessionManager) applySnapshot(gen uint64, snap domainauth.Snapshot) {
	ctx := context.Background()

	m.mu.Lock()
	if gen != m.subGen || m.state != domainauth.StateActive {
		m.mu.Unlock()
		metrics.EmitSubscriptionEvent(m.metrics, snap.Record.Collection, metrics.ResultNoop)
		return
	}

	if snap.Deleted {
		m.handleDeletedLocked(ctx, snap)
		return
	}

	m.identity = m.refreshFromRecord(ctx, m.identity, snap.Record)
	attempt := m.attempt
	m.notifyLocked()
	m.mu.Unlock()

	m.saveSnapshot(ctx, attempt)
	metrics.EmitSubscriptionEvent(m.metrics, snap.Record.Collection, metrics.ResultSuccess)
}

// handleDeletedLocked must be called with mu held; it releases mu.
func (m *SessionManager) handleDeletedLocked(ctx context.Context, snap domainauth.Snapshot) {
	// Close runs on its own goroutine: this callback may be running on the
	// subscription's delivery goroutine, which Close waits for.
	sub := m.detachLocked()
	if m.cfg.KeepSessionOnDelete {
		m.mu.Unlock()
		closeAsync(sub)
		m.logger.WarnContext(ctx, "profile record deleted; keeping stale session",
			"collection", snap.Record.Collection, "record_id", snap.Record.ID)
		return
	}

	source := m.identity.Source
	m.attempt++
	m.clearLocked()
	m.mu.Unlock()

	closeAsync(sub)
	m.logger.WarnContext(ctx, "profile record deleted; session ended",
		"collection", snap.Record.Collection, "record_id", snap.Record.ID)
	if source == domainauth.SourceProvider {
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.WarnContext(ctx, "provider sign out after record deletion", "error", err)
		}
	}
	if err := m.deleteSnapshot(ctx); err != nil {
		m.logger.WarnContext(ctx, "delete session snapshot", "error", err)
	}
	metrics.EmitSubscriptionEvent(m.metrics, snap.Record.Collection, metrics.ResultDeleted)
}

// refreshFromRecord re-normalizes role and display fields from rec. The id and
// email are never touched. An unrecognized role keeps the previous one.
func (m *SessionManager) refreshFromRecord(ctx context.Context, id domainauth.Identity, rec domainauth.ProfileRecord) domainauth.Identity {
	if role, err := m.resolver.Normalize(rec); err == nil {
		id.Role = role
	} else {
		m.logger.WarnContext(ctx, "live update carries unrecognized role; keeping previous role",
			"record_id", rec.ID, "raw_role", rec.RawRole(), "role", id.Role)
	}
	if name := rec.DisplayName(); name != "" {
		id.DisplayName = name
	}
	id.ProfileImageRef = rec.AvatarRef()
	id.Phone = rec.Phone()
	return id
}

// applyProfileEdit refreshes display fields after a successful profile update.
// It is a no-op when the session changed in the meantime.
func (m *SessionManager) applyProfileEdit(ctx context.Context, identityID string, edit ProfileUpdate) domainauth.Identity {
	m.mu.Lock()
	if m.identity.ID != identityID || m.state != domainauth.StateActive {
		current := m.identity
		m.mu.Unlock()
		return current
	}
	if edit.Name != nil {
		m.identity.DisplayName = strings.TrimSpace(*edit.Name)
	}
	if edit.Email != nil {
		m.identity.Email = domainauth.NormalizeEmail(*edit.Email)
	}
	if edit.Phone != nil {
		m.identity.Phone = strings.TrimSpace(*edit.Phone)
	}
	updated := m.identity
	attempt := m.attempt
	m.notifyLocked()
	m.mu.Unlock()

	m.saveSnapshot(ctx, attempt)
	return updated
}

// detachLocked removes the current subscription and invalidates its generation.
func (m *SessionManager) detachLocked() ports.Subscription {
	sub := m.sub
	m.sub = nil
	m.subGen++
	return sub
}

func (m *SessionManager) clearLocked() {
	wasSet := !m.identity.IsZero()
	m.identity = domainauth.Identity{}
	m.state = domainauth.StateIdle
	if wasSet {
		m.notifyLocked()
		metrics.EmitSessionActive(m.metrics, "")
	}
}

// notifyLocked pushes the current identity to every watcher without blocking.
// A full buffer drops its oldest entry so the latest state always lands.
func (m *SessionManager) notifyLocked() {
	for _, ch := range m.watchers {
		for delivered := false; !delivered; {
			select {
			case ch <- m.identity:
				delivered = true
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}

// saveSnapshot persists the active identity while attempt is still current.
// It writes the identity held at save time, so out-of-order saves cannot
// regress the snapshot, and a Logout that already started skips it.
func (m *SessionManager) saveSnapshot(ctx context.Context, attempt uint64) {
	if m.snapshots == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if attempt != m.attempt || m.state != domainauth.StateActive {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "skipping stale session snapshot", "attempt", attempt)
		return
	}
	id := m.identity
	m.mu.Unlock()

	if err := m.snapshots.Save(context.WithoutCancel(ctx), id); err != nil {
		m.logger.WarnContext(ctx, "persist session snapshot", "error", err)
	}
}

// deleteSnapshot waits for any in-flight save before deleting.
func (m *SessionManager) deleteSnapshot(ctx context.Context) error {
	if m.snapshots == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.snapshots.Delete(context.WithoutCancel(ctx))
}

func (m *SessionManager) emitLogin(path string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitLogin(m.metrics, metrics.LoginMetric{Path: path, Result: result, Duration: time.Since(start), Err: err})
}

func closeAsync(sub ports.Subscription) {
	if sub == nil {
		return
	}
	go func() { _ = sub.Close() }()
}
