package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/ports"
)

// SubmissionService owns the PoI submission lifecycle: creation,
// review, listing, and reward claims against verified submissions.
type SubmissionService struct {
	identities  ports.IdentityStore
	submissions ports.SubmissionStore
	events      ports.EventPublisher
	log         zerolog.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	identities ports.IdentityStore,
	submissions ports.SubmissionStore,
	events ports.EventPublisher,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		identities:  identities,
		submissions: submissions,
		events:      events,
		log:         log.With().Str("service", "submission").Logger(),
	}
}

// Submit records new cleanup evidence as a PENDING submission owned by
// the caller.
func (s *SubmissionService) Submit(ctx context.Context, owner core.Identity, ev core.Evidence) (core.Submission, error) {
	if ev.BeforeCID == "" || ev.AfterCID == "" {
		return core.Submission{}, fmt.Errorf("%w: before and after image references are required", core.ErrValidation)
	}

	sub := core.Submission{
		ID:          uuid.NewString(),
		Owner:       owner.Address,
		Evidence:    ev,
		Status:      core.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}

	created, err := s.submissions.CreateSubmission(ctx, sub)
	if err != nil {
		return core.Submission{}, fmt.Errorf("failed to store submission: %w", err)
	}

	s.log.Info().Str("submission_id", created.ID).Str("owner", created.Owner).Msg("submission created")

	if s.events != nil {
		if err := s.events.PublishSubmissionCreated(ctx, created); err != nil {
			s.log.Warn().Err(err).Str("submission_id", created.ID).Msg("failed to publish submission event")
		}
	}

	return created, nil
}

// Get returns one submission. Owners see their own; reviewers see any.
func (s *SubmissionService) Get(ctx context.Context, id string, requester core.Identity) (core.Submission, error) {
	sub, err := s.submissions.GetSubmission(ctx, id)
	if err != nil {
		return core.Submission{}, err
	}
	if sub.Owner != requester.Address && !requester.Role.CanReview() {
		return core.Submission{}, core.ErrForbidden
	}
	return sub, nil
}

// List returns one page of submissions plus the total match count.
// Non-reviewers are pinned to their own submissions regardless of the
// filter they pass.
func (s *SubmissionService) List(ctx context.Context, requester core.Identity, filter core.SubmissionFilter, page core.Page) ([]core.Submission, int, error) {
	if !requester.Role.CanReview() {
		filter.Owner = requester.Address
	}
	return s.submissions.ListSubmissions(ctx, filter, page)
}

// Review finalizes a PENDING submission with a terminal decision. The
// underlying store transition is compare-and-set, so of two concurrent
// reviews exactly one lands and the other reports the conflict.
func (s *SubmissionService) Review(ctx context.Context, id string, actor core.Identity, decision core.SubmissionStatus, notes string) (core.Submission, error) {
	if !decision.Terminal() {
		return core.Submission{}, fmt.Errorf("%w: decision must be VERIFIED or REJECTED", core.ErrValidation)
	}
	if !actor.Role.CanReview() {
		return core.Submission{}, core.ErrForbidden
	}

	sub, err := s.submissions.FinalizeSubmission(ctx, id, decision, actor.Address, notes, time.Now().UTC())
	if err != nil {
		return core.Submission{}, err
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("decision", string(decision)).
		Str("verified_by", actor.Address).
		Msg("submission reviewed")

	if s.events != nil {
		if err := s.events.PublishSubmissionReviewed(ctx, sub); err != nil {
			s.log.Warn().Err(err).Str("submission_id", sub.ID).Msg("failed to publish review event")
		}
	}

	return sub, nil
}

// Claim redeems a verified submission for an impact-level upgrade plus
// DCU points. Each submission is redeemable once; MarkClaimed is the
// compare-and-set that picks the single winner among concurrent claims.
func (s *SubmissionService) Claim(ctx context.Context, owner core.Identity, submissionID string, level int) (core.ClaimResult, error) {
	tier, err := core.ImpactLevelForLevel(level)
	if err != nil {
		return core.ClaimResult{}, fmt.Errorf("%w: level must be between %d and %d", core.ErrValidation, core.MinLevel, core.MaxLevel)
	}

	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return core.ClaimResult{}, err
	}
	if sub.Owner != owner.Address {
		return core.ClaimResult{}, core.ErrForbidden
	}
	if !sub.EligibleForClaim {
		return core.ClaimResult{}, core.ErrNotEligible
	}

	now := time.Now().UTC()
	if _, err := s.submissions.MarkClaimed(ctx, submissionID, now); err != nil {
		return core.ClaimResult{}, err
	}

	if err := s.identities.RecordClaim(ctx, owner.Address, level, tier, core.SubmissionClaimPoints); err != nil {
		return core.ClaimResult{}, fmt.Errorf("failed to record claim: %w", err)
	}

	result := core.ClaimResult{
		SubmissionID: submissionID,
		Level:        level,
		Tier:         tier,
		Eligible:     true,
		Points:       core.SubmissionClaimPoints,
		Message:      core.ClaimMessage(level),
		ClaimedAt:    now,
	}

	s.log.Info().
		Str("address", owner.Address).
		Str("submission_id", submissionID).
		Int("level", level).
		Msg("reward claimed")

	if s.events != nil {
		if err := s.events.PublishRewardClaimed(ctx, owner.Address, result); err != nil {
			s.log.Warn().Err(err).Str("submission_id", submissionID).Msg("failed to publish claim event")
		}
	}

	return result, nil
}

// Dashboard aggregates the caller's profile with their submission
// counters.
type Dashboard struct {
	Identity   core.Identity `json:"identity"`
	Total      int           `json:"total_submissions"`
	Verified   int           `json:"verified_submissions"`
	Pending    int           `json:"pending_submissions"`
	Claimable  int           `json:"claimable_submissions"`
	LastStatus string        `json:"last_submission_status,omitempty"`
}

// GetDashboard reloads the identity and summarizes its submissions.
func (s *SubmissionService) GetDashboard(ctx context.Context, address string) (Dashboard, error) {
	identity, err := s.identities.GetIdentity(ctx, address)
	if err != nil {
		return Dashboard{}, err
	}

	subs, total, err := s.submissions.ListSubmissions(ctx, core.SubmissionFilter{
		Owner:      address,
		Descending: true,
	}, core.Page{Limit: maxDashboardSubmissions})
	if err != nil {
		return Dashboard{}, fmt.Errorf("failed to list submissions: %w", err)
	}

	d := Dashboard{Identity: identity, Total: total}
	for _, sub := range subs {
		switch sub.Status {
		case core.StatusVerified:
			d.Verified++
		case core.StatusPending:
			d.Pending++
		}
		if sub.EligibleForClaim && sub.ClaimedAt == nil {
			d.Claimable++
		}
	}
	if len(subs) > 0 {
		d.LastStatus = string(subs[0].Status)
	}

	return d, nil
}

// maxDashboardSubmissions bounds the scan backing the dashboard
// counters.
const maxDashboardSubmissions = 1000
