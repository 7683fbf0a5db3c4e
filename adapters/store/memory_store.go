package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decleanup/dcu/core"
)

// MemoryStore is an in-memory implementation of the identity, session
// and submission store ports. A single mutex makes every operation,
// including the compare-and-set ones, atomic. Used in tests and for
// local development without postgres/redis.
type MemoryStore struct {
	mu          sync.RWMutex
	identities  map[string]core.Identity
	sessions    map[string]core.Session
	submissions map[string]core.Submission
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:  make(map[string]core.Identity),
		sessions:    make(map[string]core.Session),
		submissions: make(map[string]core.Submission),
	}
}

// UpsertIdentity returns the identity for address, creating it with
// defaults on first sight.
func (s *MemoryStore) UpsertIdentity(ctx context.Context, address string) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.identities[address]; ok {
		return id, nil
	}

	now := time.Now().UTC()
	id := core.Identity{
		Address:     address,
		Role:        core.RoleUser,
		ImpactLevel: core.ImpactNewbie,
		ImpactValue: 1,
		Points: core.PointBalance{
			Total:           decimal.Zero,
			FromSubmissions: decimal.Zero,
			FromReferrals:   decimal.Zero,
			FromStreaks:     decimal.Zero,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.identities[address] = id
	return id, nil
}

// GetIdentity retrieves an identity by address
func (s *MemoryStore) GetIdentity(ctx context.Context, address string) (core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[address]
	if !ok {
		return core.Identity{}, core.ErrNotFound
	}
	return id, nil
}

// SetNonce overwrites the outstanding challenge for address
func (s *MemoryStore) SetNonce(ctx context.Context, address, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[address]
	if !ok {
		return core.ErrNotFound
	}
	id.CurrentNonce = nonce
	id.UpdatedAt = time.Now().UTC()
	s.identities[address] = id
	return nil
}

// ConsumeNonce clears the challenge iff it still equals nonce
func (s *MemoryStore) ConsumeNonce(ctx context.Context, address, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[address]
	if !ok {
		return false, core.ErrNotFound
	}
	if nonce == "" || id.CurrentNonce != nonce {
		return false, nil
	}
	id.CurrentNonce = ""
	id.UpdatedAt = time.Now().UTC()
	s.identities[address] = id
	return true, nil
}

// UpdateDisplayName sets the optional alias
func (s *MemoryStore) UpdateDisplayName(ctx context.Context, address, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[address]
	if !ok {
		return core.ErrNotFound
	}
	id.DisplayName = displayName
	id.UpdatedAt = time.Now().UTC()
	s.identities[address] = id
	return nil
}

// SetRole changes an identity's privilege level. Not part of the store
// ports; used to seed validators in tests and local development.
func (s *MemoryStore) SetRole(address string, role core.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[address]
	if !ok {
		return core.ErrNotFound
	}
	id.Role = role
	id.UpdatedAt = time.Now().UTC()
	s.identities[address] = id
	return nil
}

// RecordClaim applies a successful reward claim to the identity
func (s *MemoryStore) RecordClaim(ctx context.Context, address string, level int, tier core.ImpactLevel, points decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[address]
	if !ok {
		return core.ErrNotFound
	}
	id.ImpactLevel = tier
	id.ImpactValue = level
	id.Points.FromSubmissions = id.Points.FromSubmissions.Add(points)
	id.Points.Total = id.Points.Total.Add(points)
	id.UpdatedAt = time.Now().UTC()
	s.identities[address] = id
	return nil
}

// CreateSession stores a session record. The TTL is implicit in the
// record's expiry; validity is computed lazily at check time.
func (s *MemoryStore) CreateSession(ctx context.Context, session core.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

// GetSession returns core.ErrSessionInvalid for unknown IDs
func (s *MemoryStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return core.Session{}, core.ErrSessionInvalid
	}
	return session, nil
}

// DeactivateSession flips the record inactive. Idempotent.
func (s *MemoryStore) DeactivateSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	session.Active = false
	s.sessions[id] = session
	return nil
}

// CreateSubmission persists a new submission record
func (s *MemoryStore) CreateSubmission(ctx context.Context, sub core.Submission) (core.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.submissions[sub.ID] = sub
	return sub, nil
}

// GetSubmission retrieves a submission by ID
func (s *MemoryStore) GetSubmission(ctx context.Context, id string) (core.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return core.Submission{}, core.ErrNotFound
	}
	return sub, nil
}

// ListSubmissions returns one page of matches plus the total count
func (s *MemoryStore) ListSubmissions(ctx context.Context, filter core.SubmissionFilter, page core.Page) ([]core.Submission, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]core.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		if matchesFilter(sub, filter) {
			matched = append(matched, sub)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := sortKey(matched[i], filter.SortBy), sortKey(matched[j], filter.SortBy)
		if ti.Equal(tj) {
			// Tie broken by ID so pagination stays deterministic.
			if filter.Descending {
				return matched[i].ID > matched[j].ID
			}
			return matched[i].ID < matched[j].ID
		}
		if filter.Descending {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})

	total := len(matched)

	limit := page.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}
	offset := page.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

// FinalizeSubmission performs the PENDING -> decision compare-and-set
func (s *MemoryStore) FinalizeSubmission(ctx context.Context, id string, decision core.SubmissionStatus, verifier, notes string, at time.Time) (core.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return core.Submission{}, core.ErrNotFound
	}
	if sub.Status != core.StatusPending {
		return core.Submission{}, core.ErrAlreadyFinalized
	}

	verifiedAt := at
	sub.Status = decision
	sub.VerifiedBy = verifier
	sub.VerifiedAt = &verifiedAt
	sub.Notes = notes
	sub.EligibleForClaim = decision == core.StatusVerified
	sub.UpdatedAt = at
	s.submissions[id] = sub
	return sub, nil
}

// MarkClaimed sets ClaimedAt iff it is unset
func (s *MemoryStore) MarkClaimed(ctx context.Context, id string, at time.Time) (core.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return core.Submission{}, core.ErrNotFound
	}
	if sub.ClaimedAt != nil {
		return core.Submission{}, core.ErrAlreadyClaimed
	}

	claimedAt := at
	sub.ClaimedAt = &claimedAt
	sub.UpdatedAt = at
	s.submissions[id] = sub
	return sub, nil
}

func matchesFilter(sub core.Submission, f core.SubmissionFilter) bool {
	if f.Status != "" && sub.Status != f.Status {
		return false
	}
	if f.Owner != "" && sub.Owner != f.Owner {
		return false
	}
	if f.EligibleOnly && !sub.EligibleForClaim {
		return false
	}
	if f.From != nil && sortKey(sub, f.SortBy).Before(*f.From) {
		return false
	}
	if f.To != nil && sortKey(sub, f.SortBy).After(*f.To) {
		return false
	}
	return true
}

func sortKey(sub core.Submission, by core.SubmissionSort) time.Time {
	if by == core.SortByVerifiedAt {
		if sub.VerifiedAt == nil {
			return time.Time{}
		}
		return *sub.VerifiedAt
	}
	return sub.CreatedAt
}
