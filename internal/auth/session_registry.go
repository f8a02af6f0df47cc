package auth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpad/classpad/internal/cache"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/metrics"
)

// DefaultSessionTTL is the fallback lifetime for session records.
const DefaultSessionTTL = 7 * 24 * time.Hour

const (
	sessionKeyPrefix = "auth:sessions:"
	subjectKeyPrefix = "auth:sessions:subject:"
)

// SessionMetadata records where a session was established from.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionRecord is the server-side record of a login, independent of token
// cryptographic validity. When Tokens is held server-side the client needs
// only the opaque session id, never the signing material.
type SessionRecord struct {
	SessionID    string      `json:"session_id"`
	SubjectID    string      `json:"subject_id"`
	Role         models.Role `json:"role"`
	SchoolID     string      `json:"school_id,omitempty"`
	Email        string      `json:"email,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty"`
	UserAgent    string      `json:"user_agent,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActivity time.Time   `json:"last_activity"`
	Tokens       *TokenPair  `json:"tokens,omitempty"`
}

// Identity reconstructs the request identity held by the record.
func (r *SessionRecord) Identity() Identity {
	return Identity{
		SubjectID:   r.SubjectID,
		Role:        r.Role,
		SchoolID:    r.SchoolID,
		Email:       r.Email,
		CrossTenant: r.Role == models.RolePlatformOperator,
	}
}

// valid re-checks the claim-shape invariants on the stored record. Session
// existence alone never authorizes a request.
func (r *SessionRecord) valid() bool {
	if r.SessionID == "" || r.SubjectID == "" || !r.Role.Valid() {
		return false
	}
	if r.Role == models.RolePlatformOperator {
		return r.SchoolID == ""
	}
	return r.SchoolID != ""
}

// CreateSessionInput carries everything needed to persist a new session.
type CreateSessionInput struct {
	SessionID string
	Identity  Identity
	Meta      SessionMetadata
	Tokens    *TokenPair
}

// RegistryConfig describes tunable behaviour for the SessionRegistry.
type RegistryConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// SessionRegistry tracks live sessions in the shared key-value store. Every
// method degrades to zero values instead of returning errors: when the store
// is unreachable the rest of the system keeps operating on token
// verification alone, and no caller branches on infrastructure health.
type SessionRegistry struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// NewSessionRegistry constructs a registry over the provided store. A nil
// store is permitted and yields a registry that is permanently in token-only
// mode.
func NewSessionRegistry(store cache.Store, cfg RegistryConfig) *SessionRegistry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &SessionRegistry{
		store: store,
		ttl:   ttl,
		now:   now,
		log:   logger.WithModule("auth.sessions"),
	}
}

// NewSessionID generates a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// TTL reports the configured session lifetime.
func (r *SessionRegistry) TTL() time.Duration { return r.ttl }

// Available reports whether the backing store is currently reachable.
func (r *SessionRegistry) Available(ctx context.Context) bool {
	if r.store == nil {
		return false
	}
	return r.store.Ping(ctx) == nil
}

// Create persists a new session record and indexes it under its subject.
// It returns nil when the store is unreachable; callers must treat that as
// "operate in store-less mode", not as a fatal error.
func (r *SessionRegistry) Create(ctx context.Context, input CreateSessionInput) *SessionRecord {
	if r.store == nil {
		return nil
	}
	if err := input.Identity.Validate(); err != nil {
		r.log.Warn("refusing to create session for invalid identity", zap.Error(err))
		return nil
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	now := r.now()
	record := &SessionRecord{
		SessionID:    sessionID,
		SubjectID:    input.Identity.SubjectID,
		Role:         input.Identity.Role,
		SchoolID:     input.Identity.SchoolID,
		Email:        input.Identity.Email,
		IPAddress:    strings.TrimSpace(input.Meta.IPAddress),
		UserAgent:    strings.TrimSpace(input.Meta.UserAgent),
		CreatedAt:    now,
		LastActivity: now,
		Tokens:       input.Tokens,
	}

	if !r.write(ctx, "create", record) {
		return nil
	}

	if err := r.store.SetAdd(ctx, subjectKey(record.SubjectID), sessionID, r.ttl); err != nil {
		r.degraded("create", err)
		_ = r.store.Delete(ctx, sessionKey(sessionID))
		return nil
	}

	metrics.ActiveSessions.Inc()
	return record
}

// Validate resolves a session id to its record. A nil result is deliberately
// ambiguous between "never existed", "expired", and "store unreachable"; the
// caller falls back to the degraded path in all three cases.
func (r *SessionRegistry) Validate(ctx context.Context, sessionID string) *SessionRecord {
	record := r.read(ctx, "validate", sessionID)
	if record == nil {
		return nil
	}

	if !record.valid() || record.SessionID != sessionID {
		r.log.Warn("pruning malformed session record", zap.String("session_id", sessionID))
		r.Revoke(ctx, sessionID, record.SubjectID)
		return nil
	}

	return record
}

// Touch refreshes a session's activity timestamp and slides its expiry
// forward. Best-effort: failures are logged, never propagated.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) {
	record := r.read(ctx, "touch", sessionID)
	if record == nil {
		return
	}

	record.LastActivity = r.now()
	if !r.write(ctx, "touch", record) {
		return
	}

	// The subject index must outlive its newest session.
	if err := r.store.Expire(ctx, subjectKey(record.SubjectID), r.ttl); err != nil {
		r.degraded("touch", err)
	}
}

// Rotate replaces the server-held token pair after a refresh, sliding both
// the record and the subject index forward. Returns the updated record, or
// nil when the session no longer exists.
func (r *SessionRegistry) Rotate(ctx context.Context, sessionID string, pair TokenPair) *SessionRecord {
	record := r.read(ctx, "rotate", sessionID)
	if record == nil {
		return nil
	}

	record.Tokens = &pair
	record.LastActivity = r.now()

	if !r.write(ctx, "rotate", record) {
		return nil
	}

	if err := r.store.SetAdd(ctx, subjectKey(record.SubjectID), sessionID, r.ttl); err != nil {
		r.degraded("rotate", err)
	}
	return record
}

// Revoke removes a session record and prunes the subject's index entry.
// Idempotent; revoking a missing session is a no-op.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, subjectID string) {
	if r.store == nil || sessionID == "" {
		return
	}

	if subjectID == "" {
		if record := r.read(ctx, "revoke", sessionID); record != nil {
			subjectID = record.SubjectID
		}
	}

	if err := r.store.Delete(ctx, sessionKey(sessionID)); err != nil {
		r.degraded("revoke", err)
		return
	}

	if subjectID != "" {
		if err := r.store.SetRemove(ctx, subjectKey(subjectID), sessionID); err != nil {
			r.degraded("revoke", err)
		}
	}

	metrics.ActiveSessions.Dec()
}

// RevokeAll removes every session belonging to a subject and returns how many
// were revoked. After it returns no prior session for the subject validates,
// barring a concurrent create racing in.
func (r *SessionRegistry) RevokeAll(ctx context.Context, subjectID string) int {
	if r.store == nil || subjectID == "" {
		return 0
	}

	members, err := r.store.SetMembers(ctx, subjectKey(subjectID))
	if err != nil {
		r.degraded("revoke_all", err)
		return 0
	}
	if len(members) == 0 {
		return 0
	}

	keys := make([]string, 0, len(members))
	for _, sessionID := range members {
		keys = append(keys, sessionKey(sessionID))
	}

	if err := r.store.Delete(ctx, keys...); err != nil {
		r.degraded("revoke_all", err)
		return 0
	}
	if err := r.store.Delete(ctx, subjectKey(subjectID)); err != nil {
		r.degraded("revoke_all", err)
	}

	metrics.ActiveSessions.Sub(float64(len(members)))
	return len(members)
}

// List returns the live sessions for a subject. Index entries whose record
// has already expired are removed as a side effect, keeping the index from
// growing unboundedly stale.
func (r *SessionRegistry) List(ctx context.Context, subjectID string) []*SessionRecord {
	if r.store == nil || subjectID == "" {
		return nil
	}

	members, err := r.store.SetMembers(ctx, subjectKey(subjectID))
	if err != nil {
		r.degraded("list", err)
		return nil
	}

	var records []*SessionRecord
	var stale []string
	for _, sessionID := range members {
		record := r.read(ctx, "list", sessionID)
		if record == nil {
			stale = append(stale, sessionID)
			continue
		}
		records = append(records, record)
	}

	if len(stale) > 0 {
		if err := r.store.SetRemove(ctx, subjectKey(subjectID), stale...); err != nil {
			r.degraded("list", err)
		}
	}

	return records
}

func (r *SessionRegistry) read(ctx context.Context, operation, sessionID string) *SessionRecord {
	if r.store == nil || sessionID == "" {
		return nil
	}

	raw, found, err := r.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		r.degraded(operation, err)
		return nil
	}
	if !found {
		return nil
	}

	var record SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		r.log.Warn("discarding undecodable session record",
			zap.String("session_id", sessionID),
			zap.Error(err))
		_ = r.store.Delete(ctx, sessionKey(sessionID))
		return nil
	}
	return &record
}

func (r *SessionRegistry) write(ctx context.Context, operation string, record *SessionRecord) bool {
	raw, err := json.Marshal(record)
	if err != nil {
		r.degraded(operation, err)
		return false
	}

	if err := r.store.Set(ctx, sessionKey(record.SessionID), raw, r.ttl); err != nil {
		r.degraded(operation, err)
		return false
	}
	return true
}

func (r *SessionRegistry) degraded(operation string, err error) {
	metrics.SessionStoreErrors.WithLabelValues(operation).Inc()
	r.log.Warn("session store operation failed",
		zap.String("operation", operation),
		zap.Error(err))
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func subjectKey(subjectID string) string {
	return subjectKeyPrefix + subjectID
}
