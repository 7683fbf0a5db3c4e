package core

import "time"

// SubmissionStatus is the lifecycle state of a PoI submission.
// PENDING is the only non-terminal state; transitions are monotonic.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusVerified SubmissionStatus = "VERIFIED"
	StatusRejected SubmissionStatus = "REJECTED"
)

// Terminal reports whether the status is a valid verification decision,
// i.e. a state a PENDING submission may move to.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusRejected:
		return true
	case StatusPending:
		return false
	}
	return false
}

// Evidence holds the already-validated references produced by the
// external image pipeline. The core never sees raw uploads, only the
// content-addressed results and extracted metadata.
type Evidence struct {
	BeforeCID  string     `json:"before_cid"`
	AfterCID   string     `json:"after_cid"`
	Latitude   string     `json:"latitude,omitempty"`
	Longitude  string     `json:"longitude,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// Submission represents one proof-of-impact record.
type Submission struct {
	ID               string           `json:"id"`
	Owner            string           `json:"owner"` // identity address
	Evidence         Evidence         `json:"evidence"`
	Status           SubmissionStatus `json:"status"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	VerifiedBy       string           `json:"verified_by,omitempty"` // set only on transition out of PENDING
	VerifiedAt       *time.Time       `json:"verified_at,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	EligibleForClaim bool             `json:"eligible_for_claim"` // true iff Status == VERIFIED
	ClaimedAt        *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SubmissionSort names the timestamp field list results are ordered by.
type SubmissionSort string

const (
	SortByCreatedAt  SubmissionSort = "created_at"
	SortByVerifiedAt SubmissionSort = "verified_at"
)

// SubmissionFilter narrows and orders submission listings. Zero values
// mean "any". Ordering ties are broken by submission ID so pagination
// stays deterministic under concurrent inserts.
type SubmissionFilter struct {
	Status       SubmissionStatus
	Owner        string
	From         *time.Time
	To           *time.Time
	EligibleOnly bool
	SortBy       SubmissionSort
	Descending   bool
}

// Page bounds one page of a listing.
type Page struct {
	Offset int
	Limit  int
}

// DefaultPageLimit caps listings when the caller does not set one.
const DefaultPageLimit = 20
