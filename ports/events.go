package ports

import (
	"context"

	"github.com/decleanup/dcu/core"
)

// EventPublisher publishes domain events to notify other instances and
// downstream collaborators (reward disbursement, social sharing).
type EventPublisher interface {
	PublishLogout(ctx context.Context, address, sessionID string) error
	PublishSubmissionCreated(ctx context.Context, sub core.Submission) error
	PublishSubmissionReviewed(ctx context.Context, sub core.Submission) error
	PublishRewardClaimed(ctx context.Context, address string, result core.ClaimResult) error
}
