package ports

import (
	"context"
	"time"

	"github.com/decleanup/dcu/core"
	"github.com/shopspring/decimal"
)

// IdentityStore persists wallet identities and their outstanding
// challenges. Nonce consumption is a compare-and-set: when two logins
// race over the same nonce, exactly one ConsumeNonce call reports true.
type IdentityStore interface {
	// UpsertIdentity returns the identity for address, creating it with
	// USER role and NEWBIE level on first sight.
	UpsertIdentity(ctx context.Context, address string) (core.Identity, error)

	// GetIdentity returns core.ErrNotFound for unknown addresses.
	GetIdentity(ctx context.Context, address string) (core.Identity, error)

	// SetNonce overwrites any prior challenge for address, invalidating
	// an issued-but-unused nonce.
	SetNonce(ctx context.Context, address, nonce string) error

	// ConsumeNonce atomically clears the challenge iff it still equals
	// nonce. Returns true only for the call that cleared it.
	ConsumeNonce(ctx context.Context, address, nonce string) (bool, error)

	// UpdateDisplayName sets the optional human-readable alias.
	UpdateDisplayName(ctx context.Context, address, displayName string) error

	// RecordClaim applies a successful reward claim: tier upgrade plus
	// DCU points credited to the submissions bucket.
	RecordClaim(ctx context.Context, address string, level int, tier core.ImpactLevel, points decimal.Decimal) error
}

// SessionStore persists server-side session records. Validity is
// computed lazily at check time; there is no background sweep.
type SessionStore interface {
	CreateSession(ctx context.Context, session core.Session, ttl time.Duration) error

	// GetSession returns core.ErrSessionInvalid for unknown IDs so a
	// missing record is indistinguishable from an expired one.
	GetSession(ctx context.Context, id string) (core.Session, error)

	// DeactivateSession flips the record inactive. Idempotent; the flip
	// is safe to apply redundantly from concurrent validity checks.
	DeactivateSession(ctx context.Context, id string) error
}

// SubmissionStore persists PoI submissions. Status transitions are
// compare-and-set on the PENDING state so two concurrent decisions have
// exactly one winner.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub core.Submission) (core.Submission, error)

	// GetSubmission returns core.ErrNotFound for unknown IDs.
	GetSubmission(ctx context.Context, id string) (core.Submission, error)

	// ListSubmissions returns one page plus the total match count.
	ListSubmissions(ctx context.Context, filter core.SubmissionFilter, page core.Page) ([]core.Submission, int, error)

	// FinalizeSubmission moves a PENDING submission to decision, setting
	// verifier, notes, the verification timestamp and the eligibility
	// flag in the same atomic write. Returns core.ErrAlreadyFinalized
	// when the submission already left PENDING.
	FinalizeSubmission(ctx context.Context, id string, decision core.SubmissionStatus, verifier, notes string, at time.Time) (core.Submission, error)

	// MarkClaimed sets ClaimedAt iff it is unset. Returns
	// core.ErrAlreadyClaimed when a prior claim won.
	MarkClaimed(ctx context.Context, id string, at time.Time) (core.Submission, error)
}
