package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decleanup/dcu/core"
)

// PostgresStore implements the identity and submission store ports on
// PostgreSQL. Single-entity atomicity comes from guarded UPDATEs:
// compare-and-set transitions add the expected current state to the
// WHERE clause and check the affected row count, so two racing writers
// have exactly one winner without explicit locks.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the tables if they do not exist. Identity rows are
// referenced by submissions without cascade, so an identity cannot be
// deleted while submissions for it exist.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	address                 TEXT PRIMARY KEY,
	display_name            TEXT NOT NULL DEFAULT '',
	role                    TEXT NOT NULL DEFAULT 'USER',
	current_nonce           TEXT NOT NULL DEFAULT '',
	impact_level            TEXT NOT NULL DEFAULT 'NEWBIE',
	impact_value            INTEGER NOT NULL DEFAULT 1,
	points_total            NUMERIC NOT NULL DEFAULT 0,
	points_from_submissions NUMERIC NOT NULL DEFAULT 0,
	points_from_referrals   NUMERIC NOT NULL DEFAULT 0,
	points_from_streaks     NUMERIC NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS poi_submissions (
	id                 TEXT PRIMARY KEY,
	owner_address      TEXT NOT NULL REFERENCES identities(address),
	before_cid         TEXT NOT NULL,
	after_cid          TEXT NOT NULL,
	latitude           TEXT NOT NULL DEFAULT '',
	longitude          TEXT NOT NULL DEFAULT '',
	captured_at        TIMESTAMPTZ,
	status             TEXT NOT NULL DEFAULT 'PENDING',
	submitted_at       TIMESTAMPTZ NOT NULL,
	verified_by        TEXT NOT NULL DEFAULT '',
	verified_at        TIMESTAMPTZ,
	notes              TEXT NOT NULL DEFAULT '',
	eligible_for_claim BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at         TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_poi_submissions_owner ON poi_submissions (owner_address);
CREATE INDEX IF NOT EXISTS idx_poi_submissions_status ON poi_submissions (status);
`

// EnsureSchema creates the tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const identityColumns = `address, display_name, role, current_nonce, impact_level, impact_value,
	points_total, points_from_submissions, points_from_referrals, points_from_streaks,
	created_at, updated_at`

// UpsertIdentity returns the identity for address, creating it with
// defaults on first sight.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, address string) (core.Identity, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (address, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (address) DO NOTHING
	`, address, now)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return s.GetIdentity(ctx, address)
}

// GetIdentity retrieves an identity by address
func (s *PostgresStore) GetIdentity(ctx context.Context, address string) (core.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE address = $1
	`, address)
	return scanIdentity(row)
}

// SetNonce overwrites the outstanding challenge for address
func (s *PostgresStore) SetNonce(ctx context.Context, address, nonce string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET current_nonce = $2, updated_at = $3 WHERE address = $1
	`, address, nonce, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ConsumeNonce clears the challenge iff it still equals nonce. The
// guarded UPDATE makes concurrent logins over the same nonce resolve to
// exactly one winner.
func (s *PostgresStore) ConsumeNonce(ctx context.Context, address, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET current_nonce = '', updated_at = $3
		WHERE address = $1 AND current_nonce = $2
	`, address, nonce, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return rows == 1, nil
}

// UpdateDisplayName sets the optional alias
func (s *PostgresStore) UpdateDisplayName(ctx context.Context, address, displayName string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET display_name = $2, updated_at = $3 WHERE address = $1
	`, address, displayName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// RecordClaim applies a successful reward claim to the identity
func (s *PostgresStore) RecordClaim(ctx context.Context, address string, level int, tier core.ImpactLevel, points decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET impact_level = $2, impact_value = $3,
			points_from_submissions = points_from_submissions + $4,
			points_total = points_total + $4,
			updated_at = $5
		WHERE address = $1
	`, address, string(tier), level, points.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

const submissionColumns = `id, owner_address, before_cid, after_cid, latitude, longitude, captured_at,
	status, submitted_at, verified_by, verified_at, notes, eligible_for_claim, claimed_at,
	created_at, updated_at`

// CreateSubmission persists a new submission record
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub core.Submission) (core.Submission, error) {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poi_submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, sub.ID, sub.Owner, sub.Evidence.BeforeCID, sub.Evidence.AfterCID,
		sub.Evidence.Latitude, sub.Evidence.Longitude, nullTime(sub.Evidence.CapturedAt),
		string(sub.Status), sub.SubmittedAt, sub.VerifiedBy, nullTime(sub.VerifiedAt),
		sub.Notes, sub.EligibleForClaim, nullTime(sub.ClaimedAt), sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return sub, nil
}

// GetSubmission retrieves a submission by ID
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (core.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM poi_submissions
		WHERE id = $1
	`, id)
	return scanSubmission(row)
}

// ListSubmissions returns one page of matches plus the total count
func (s *PostgresStore) ListSubmissions(ctx context.Context, filter core.SubmissionFilter, page core.Page) ([]core.Submission, int, error) {
	where, args := buildSubmissionWhere(filter)

	sortColumn := "created_at"
	if filter.SortBy == core.SortByVerifiedAt {
		sortColumn = "verified_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}

	limit := page.Limit
	if limit <= 0 {
		limit = core.DefaultPageLimit
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM poi_submissions" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM poi_submissions%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		submissionColumns, where, sortColumn, direction, direction, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	defer rows.Close()

	var subs []core.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	return subs, total, nil
}

// FinalizeSubmission performs the PENDING -> decision compare-and-set.
// The status guard in the WHERE clause is what guarantees at-most-one
// winner under concurrent reviews.
func (s *PostgresStore) FinalizeSubmission(ctx context.Context, id string, decision core.SubmissionStatus, verifier, notes string, at time.Time) (core.Submission, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE poi_submissions
		SET status = $2, verified_by = $3, verified_at = $4, notes = $5,
			eligible_for_claim = $6, updated_at = $4
		WHERE id = $1 AND status = $7
	`, id, string(decision), verifier, at, notes,
		decision == core.StatusVerified, string(core.StatusPending))
	if err != nil {
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	if rows == 0 {
		// Lost the race or never existed; a follow-up read tells which.
		if _, err := s.GetSubmission(ctx, id); err != nil {
			return core.Submission{}, err
		}
		return core.Submission{}, core.ErrAlreadyFinalized
	}
	return s.GetSubmission(ctx, id)
}

// MarkClaimed sets claimed_at iff it is unset
func (s *PostgresStore) MarkClaimed(ctx context.Context, id string, at time.Time) (core.Submission, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE poi_submissions
		SET claimed_at = $2, updated_at = $2
		WHERE id = $1 AND claimed_at IS NULL
	`, id, at)
	if err != nil {
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	if rows == 0 {
		if _, err := s.GetSubmission(ctx, id); err != nil {
			return core.Submission{}, err
		}
		return core.Submission{}, core.ErrAlreadyClaimed
	}
	return s.GetSubmission(ctx, id)
}

func buildSubmissionWhere(filter core.SubmissionFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Owner != "" {
		add("owner_address = $%d", filter.Owner)
	}
	if filter.EligibleOnly {
		clauses = append(clauses, "eligible_for_claim = TRUE")
	}
	timeColumn := "created_at"
	if filter.SortBy == core.SortByVerifiedAt {
		timeColumn = "verified_at"
	}
	if filter.From != nil {
		add(timeColumn+" >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(timeColumn+" <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (core.Identity, error) {
	var (
		id                               core.Identity
		role, level                      string
		total, fromSubs, fromRef, fromSt string
	)
	err := row.Scan(&id.Address, &id.DisplayName, &role, &id.CurrentNonce, &level, &id.ImpactValue,
		&total, &fromSubs, &fromRef, &fromSt, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Identity{}, core.ErrNotFound
		}
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	id.Role = core.Role(role)
	id.ImpactLevel = core.ImpactLevel(level)
	if id.Points, err = scanPoints(total, fromSubs, fromRef, fromSt); err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return id, nil
}

func scanPoints(total, fromSubs, fromRef, fromSt string) (core.PointBalance, error) {
	var (
		p   core.PointBalance
		err error
	)
	if p.Total, err = decimal.NewFromString(total); err != nil {
		return p, err
	}
	if p.FromSubmissions, err = decimal.NewFromString(fromSubs); err != nil {
		return p, err
	}
	if p.FromReferrals, err = decimal.NewFromString(fromRef); err != nil {
		return p, err
	}
	if p.FromStreaks, err = decimal.NewFromString(fromSt); err != nil {
		return p, err
	}
	return p, nil
}

func scanSubmission(row rowScanner) (core.Submission, error) {
	var (
		sub                              core.Submission
		status                           string
		capturedAt, verifiedAt, claimedAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.Owner, &sub.Evidence.BeforeCID, &sub.Evidence.AfterCID,
		&sub.Evidence.Latitude, &sub.Evidence.Longitude, &capturedAt,
		&status, &sub.SubmittedAt, &sub.VerifiedBy, &verifiedAt, &sub.Notes,
		&sub.EligibleForClaim, &claimedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Submission{}, core.ErrNotFound
		}
		return core.Submission{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	sub.Status = core.SubmissionStatus(status)
	sub.Evidence.CapturedAt = timePtr(capturedAt)
	sub.VerifiedAt = timePtr(verifiedAt)
	sub.ClaimedAt = timePtr(claimedAt)
	return sub, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}
