package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/ports"
)

// Topics other instances and downstream collaborators subscribe to.
const (
	TopicLogout             = "dcu.auth.logout"
	TopicSubmissionCreated  = "dcu.submission.created"
	TopicSubmissionReviewed = "dcu.submission.reviewed"
	TopicRewardClaimed      = "dcu.reward.claimed"
)

// LogoutEvent represents a session revocation
type LogoutEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// SubmissionEvent carries the submission state after a create or review
type SubmissionEvent struct {
	ID               string                `json:"id"`
	Owner            string                `json:"owner"`
	Status           core.SubmissionStatus `json:"status"`
	VerifiedBy       string                `json:"verified_by,omitempty"`
	EligibleForClaim bool                  `json:"eligible_for_claim"`
}

// RewardClaimedEvent notifies the disbursement collaborator
type RewardClaimedEvent struct {
	Address      string           `json:"address"`
	SubmissionID string           `json:"submission_id"`
	Level        int              `json:"level"`
	Tier         core.ImpactLevel `json:"tier"`
	Points       string           `json:"points"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address, sessionID string) error {
	return p.publish(TopicLogout, LogoutEvent{
		Address:   address,
		SessionID: sessionID,
	})
}

// PublishSubmissionCreated publishes a submission creation event
func (p *WatermillPublisher) PublishSubmissionCreated(ctx context.Context, sub core.Submission) error {
	return p.publish(TopicSubmissionCreated, submissionEvent(sub))
}

// PublishSubmissionReviewed publishes a verification decision event
func (p *WatermillPublisher) PublishSubmissionReviewed(ctx context.Context, sub core.Submission) error {
	return p.publish(TopicSubmissionReviewed, submissionEvent(sub))
}

// PublishRewardClaimed publishes a reward claim event
func (p *WatermillPublisher) PublishRewardClaimed(ctx context.Context, address string, result core.ClaimResult) error {
	return p.publish(TopicRewardClaimed, RewardClaimedEvent{
		Address:      address,
		SubmissionID: result.SubmissionID,
		Level:        result.Level,
		Tier:         result.Tier,
		Points:       result.Points.String(),
	})
}

func (p *WatermillPublisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func submissionEvent(sub core.Submission) SubmissionEvent {
	return SubmissionEvent{
		ID:               sub.ID,
		Owner:            sub.Owner,
		Status:           sub.Status,
		VerifiedBy:       sub.VerifiedBy,
		EligibleForClaim: sub.EligibleForClaim,
	}
}
