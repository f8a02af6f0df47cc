package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// InviteHandler manages school invitations: an admin invites an email into a
// role, the recipient redeems the token to create their account. Redeeming
// is the one public operation.
type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) (*InviteHandler, error) {
	if invites == nil {
		return nil, errors.New("invite handler: invite service is required")
	}
	return &InviteHandler{invites: invites}, nil
}

type createInviteRequest struct {
	SchoolID string `json:"school_id" validate:"omitempty,max=16"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
}

type redeemInviteRequest struct {
	Token     string `json:"token" validate:"required"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=128"`
	LastName  string `json:"last_name" validate:"omitempty,max=128"`
}

type inviteDTO struct {
	ID         string      `json:"id"`
	SchoolID   string      `json:"school_id"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	InvitedBy  string      `json:"invited_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	AcceptedAt *time.Time  `json:"accepted_at,omitempty"`
	Status     string      `json:"status"`
}

type inviteCreatedResponse struct {
	Invite inviteDTO `json:"invite"`
	Token  string    `json:"token"`
	Link   string    `json:"link"`
}

// POST /api/invites
func (h *InviteHandler) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	schoolID := effectiveSchoolID(c, identity, req.SchoolID)
	if schoolID == "" {
		response.Error(c, appErrors.NewBadRequest("school_id is required"))
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("role must be one of tenant-admin, teacher, parent"))
		return
	}

	token, invite, err := h.invites.Create(requestContext(c), services.CreateInviteInput{
		SchoolID:  schoolID,
		Email:     req.Email,
		Role:      role,
		InvitedBy: identity.SubjectID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := inviteCreatedResponse{
		Invite: toInviteDTO(invite, time.Now()),
		Token:  token,
		Link:   "/invite/redeem?token=" + url.QueryEscape(token),
	}

	response.Success(c, http.StatusCreated, payload)
}

// GET /api/invites
func (h *InviteHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	if schoolID == "" {
		response.Error(c, appErrors.NewBadRequest("school_id is required"))
		return
	}

	invites, err := h.invites.ListPending(requestContext(c), schoolID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	now := time.Now()
	items := make([]inviteDTO, 0, len(invites))
	for i := range invites {
		items = append(items, toInviteDTO(&invites[i], now))
	}

	response.Success(c, http.StatusOK, gin.H{"invites": items})
}

// POST /api/auth/invite/redeem
func (h *InviteHandler) Redeem(c *gin.Context) {
	var req redeemInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.invites.Redeem(requestContext(c), services.RedeemInviteInput{
		Token:     strings.TrimSpace(req.Token),
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.NewBadRequest("Invite token is invalid"))
		case errors.Is(err, services.ErrInviteExpired):
			response.Error(c, appErrors.NewBadRequest("Invite token has expired"))
		case errors.Is(err, services.ErrInviteAlreadyUsed):
			response.Error(c, appErrors.NewBadRequest("Invite has already been used"))
		default:
			response.Error(c, err)
		}
		return
	}

	payload := gin.H{
		"user":    userPayload(user),
		"message": "Account created. You can now sign in.",
	}

	response.Success(c, http.StatusCreated, payload)
}

func toInviteDTO(invite *models.Invitation, now time.Time) inviteDTO {
	status := "pending"
	switch {
	case invite.AcceptedAt != nil:
		status = "accepted"
	case invite.Expired(now):
		status = "expired"
	}

	return inviteDTO{
		ID:         invite.ID,
		SchoolID:   invite.SchoolID,
		Email:      invite.Email,
		Role:       invite.Role,
		InvitedBy:  invite.InvitedBy,
		CreatedAt:  invite.CreatedAt,
		ExpiresAt:  invite.ExpiresAt,
		AcceptedAt: invite.AcceptedAt,
		Status:     status,
	}
}
