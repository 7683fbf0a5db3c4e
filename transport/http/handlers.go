package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/service"
)

// AuthProvider is the slice of the auth service the transport needs.
type AuthProvider interface {
	Challenge(ctx context.Context, address string) (nonce, message string, err error)
	Login(ctx context.Context, address, signature, displayName string) (string, core.Identity, error)
	Validate(ctx context.Context, token string) (core.Identity, error)
	Logout(ctx context.Context, token string) error
}

// SubmissionProvider is the slice of the submission service the
// transport needs.
type SubmissionProvider interface {
	Submit(ctx context.Context, owner core.Identity, ev core.Evidence) (core.Submission, error)
	Get(ctx context.Context, id string, requester core.Identity) (core.Submission, error)
	List(ctx context.Context, requester core.Identity, filter core.SubmissionFilter, page core.Page) ([]core.Submission, int, error)
	Review(ctx context.Context, id string, actor core.Identity, decision core.SubmissionStatus, notes string) (core.Submission, error)
	Claim(ctx context.Context, owner core.Identity, submissionID string, level int) (core.ClaimResult, error)
	GetDashboard(ctx context.Context, address string) (service.Dashboard, error)
}

// Handlers carries the services behind the HTTP surface.
type Handlers struct {
	auth        AuthProvider
	submissions SubmissionProvider
}

// NewHandlers creates the HTTP handler set
func NewHandlers(auth AuthProvider, submissions SubmissionProvider) *Handlers {
	return &Handlers{auth: auth, submissions: submissions}
}

type nonceRequest struct {
	Address string `json:"address" binding:"required"`
}

type verifyRequest struct {
	Address     string `json:"address" binding:"required"`
	Signature   string `json:"signature" binding:"required"`
	DisplayName string `json:"displayName"`
}

type submitRequest struct {
	BeforeCID  string     `json:"beforeCid" binding:"required"`
	AfterCID   string     `json:"afterCid" binding:"required"`
	Latitude   string     `json:"latitude"`
	Longitude  string     `json:"longitude"`
	CapturedAt *time.Time `json:"capturedAt"`
}

type reviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

type claimRequest struct {
	SubmissionID string `json:"submissionId" binding:"required"`
	Level        int    `json:"level" binding:"required"`
}

// identityResponse is the outward projection of an identity. The
// outstanding nonce never leaves the server through this path.
type identityResponse struct {
	Address     string            `json:"address"`
	DisplayName string            `json:"displayName,omitempty"`
	Role        core.Role         `json:"role"`
	ImpactLevel core.ImpactLevel  `json:"impactLevel"`
	ImpactValue int               `json:"impactValue"`
	Points      core.PointBalance `json:"points"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func identityView(id core.Identity) identityResponse {
	return identityResponse{
		Address:     id.Address,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		ImpactLevel: id.ImpactLevel,
		ImpactValue: id.ImpactValue,
		Points:      id.Points,
		CreatedAt:   id.CreatedAt,
	}
}

// Nonce handles POST /api/auth/nonce
func (h *Handlers) Nonce(c *gin.Context) {
	var req nonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	nonce, message, err := h.auth.Challenge(c.Request.Context(), req.Address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":   nonce,
		"message": message,
	})
}

// Verify handles POST /api/auth/verify
func (h *Handlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and signature are required"})
		return
	}

	token, identity, err := h.auth.Login(c.Request.Context(), req.Address, req.Signature, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  identityView(identity),
	})
}

// Logout handles POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	token := extractBearerToken(c)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Dashboard handles GET /api/dashboard/data
func (h *Handlers) Dashboard(c *gin.Context) {
	identity := currentIdentity(c)

	d, err := h.submissions.GetDashboard(c.Request.Context(), identity.Address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":                 identityView(d.Identity),
		"totalSubmissions":     d.Total,
		"verifiedSubmissions":  d.Verified,
		"pendingSubmissions":   d.Pending,
		"claimableSubmissions": d.Claimable,
		"lastSubmissionStatus": d.LastStatus,
	})
}

// CreateSubmission handles POST /api/submissions
func (h *Handlers) CreateSubmission(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "before and after image references are required"})
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), currentIdentity(c), core.Evidence{
		BeforeCID:  req.BeforeCID,
		AfterCID:   req.AfterCID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// GetSubmission handles GET /api/submissions/:id
func (h *Handlers) GetSubmission(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"), currentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListSubmissions handles GET /api/submissions
func (h *Handlers) ListSubmissions(c *gin.Context) {
	filter, page, err := listParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subs, total, err := h.submissions.List(c.Request.Context(), currentIdentity(c), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": subs,
		"total":       total,
		"offset":      page.Offset,
		"limit":       page.Limit,
	})
}

// ReviewSubmission handles POST /api/submissions/:id/verify
func (h *Handlers) ReviewSubmission(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision is required"})
		return
	}

	sub, err := h.submissions.Review(
		c.Request.Context(),
		c.Param("id"),
		currentIdentity(c),
		core.SubmissionStatus(req.Decision),
		req.Notes,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ClaimReward handles POST /api/rewards/claim
func (h *Handlers) ClaimReward(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submissionId and level are required"})
		return
	}

	result, err := h.submissions.Claim(c.Request.Context(), currentIdentity(c), req.SubmissionID, req.Level)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func listParams(c *gin.Context) (core.SubmissionFilter, core.Page, error) {
	filter := core.SubmissionFilter{
		Status:       core.SubmissionStatus(c.Query("status")),
		Owner:        c.Query("owner"),
		EligibleOnly: c.Query("eligible") == "true",
		Descending:   c.DefaultQuery("order", "desc") == "desc",
	}

	switch sort := c.Query("sort"); sort {
	case "", string(core.SortByCreatedAt):
		filter.SortBy = core.SortByCreatedAt
	case string(core.SortByVerifiedAt):
		filter.SortBy = core.SortByVerifiedAt
	default:
		return filter, core.Page{}, errors.New("unknown sort field")
	}

	page := core.Page{Limit: core.DefaultPageLimit}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return filter, page, errors.New("limit must be a positive integer")
		}
		page.Limit = v
	}

	return filter, page, nil
}

// respondError maps domain errors onto HTTP statuses. Unexpected
// errors stay opaque to the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrInvalidLoginAttempt),
		errors.Is(err, core.ErrNotEligible):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrSessionInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrAlreadyFinalized),
		errors.Is(err, core.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
