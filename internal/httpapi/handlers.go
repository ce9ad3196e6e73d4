package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/messages"
	"callbridge/internal/telephony"
	"callbridge/internal/users"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Users    *users.Service
	Messages *messages.Service
	Calls    *calls.Lifecycle
}

/* ===================== USERS ===================== */

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.PhoneNumber)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, u)
	case errors.Is(err, users.ErrEmailTaken), errors.Is(err, users.ErrUsernameTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("register failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	}
}

func (h Handlers) Me(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	u, err := h.Users.GetByID(c.Request.Context(), uid)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.GetByID(c.Request.Context(), c.Param("user_id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, u)
	case errors.Is(err, users.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		logger.FromGin(c).Error("user lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
	}
}

func (h Handlers) ListUsers(c *gin.Context) {
	skip, limit := pagination(c)
	list, err := h.Users.List(c.Request.Context(), skip, limit)
	if err != nil {
		logger.FromGin(c).Error("user list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

/* ===================== AUTH ===================== */

// IssueToken exchanges credentials for a bearer token. Form-encoded in the
// OAuth2 password-grant shape; the username field carries the email.
func (h Handlers) IssueToken(c *gin.Context) {
	email := c.PostForm("username")
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
			return
		}
		logger.FromGin(c).Error("authentication failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	token, err := h.Auth.Issue(time.Now(), u.Email, u.ID, u.Role)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

/* ===================== MESSAGES ===================== */

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

func (h Handlers) SendMessage(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	m, err := h.Messages.Send(c.Request.Context(), uid, req.RecipientID, req.Body)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, m)
	case errors.Is(err, messages.ErrRecipientUnknown):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
	case errors.Is(err, messages.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("message send failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "message send failed"})
	}
}

func (h Handlers) ListMessages(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	skip, limit := pagination(c)
	list, err := h.Messages.ListForUser(c.Request.Context(), uid, skip, limit)
	if err != nil {
		logger.FromGin(c).Error("message list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "message list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

/* ===================== CALLS ===================== */

type startCallRequest struct {
	Destination string `json:"destination_number"`
}

func (h Handlers) StartCall(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rec, err := h.Calls.Initiate(c.Request.Context(), uid, req.Destination)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"call_record_id":   rec.ID,
			"provider_call_id": rec.ProviderCallID,
			"message":          "call initiated",
		})
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, telephony.ErrInvalidDestination):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrProviderUnavailable):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "telephony provider unavailable"})
	default:
		logger.FromGin(c).Error("call initiation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	}
}

// ListCalls returns the authenticated caller's own records.
func (h Handlers) ListCalls(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	skip, limit := pagination(c)
	list, err := h.Calls.ListForCaller(c.Request.Context(), uid, skip, limit)
	if err != nil {
		logger.FromGin(c).Error("call list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	switch {
	case err == nil:
		// Callers may only read their own records; admins read anything.
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		if rec.CallerID != uid && role != users.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	default:
		logger.FromGin(c).Error("call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
	}
}

// AdminListCalls returns every call record. RBAC: admin only.
func (h Handlers) AdminListCalls(c *gin.Context) {
	skip, limit := pagination(c)
	list, err := h.Calls.ListAll(c.Request.Context(), skip, limit)
	if err != nil {
		logger.FromGin(c).Error("admin call list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

/* ===================== PROVIDER CALLBACKS ===================== */

// CallInstructions serves dial instructions to the provider when the callee
// answers. Unauthenticated; the record id in the path is the only handle.
func (h Handlers) CallInstructions(c *gin.Context) {
	ins, err := h.Calls.RoutingDecision(c.Request.Context(), c.Param("call_id"), c.ClientIP())
	if err != nil {
		if errors.Is(err, calls.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
			return
		}
		if errors.Is(err, calls.ErrNotFound) {
			// Unknown record: tell the provider to hang up rather than
			// leaving the call dangling.
			h.renderTwiML(c, http.StatusNotFound, telephony.RoutingInstruction{Action: telephony.RoutingActionHangup})
			return
		}
		logger.FromGin(c).Error("routing decision failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		return
	}
	h.renderTwiML(c, http.StatusOK, ins)
}

// CallStatus ingests a provider status callback and advances the record's
// state machine. Always 204 when the event was applied or absorbed.
func (h Handlers) CallStatus(c *gin.Context) {
	form, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	err = h.Calls.ApplyStatus(c.Request.Context(), c.Param("call_id"), form.CallStatus, form.CallSid, c.ClientIP(), form.RawPayload())
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status callback"})
	default:
		logger.FromGin(c).Error("status callback failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status callback failed"})
	}
}

func (h Handlers) renderTwiML(c *gin.Context, status int, ins telephony.RoutingInstruction) {
	body, err := telephony.RenderTwiML(ins)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml render failed"})
		return
	}
	c.Data(status, "application/xml; charset=utf-8", []byte(body))
}

/* ===================== HELPERS ===================== */

func pagination(c *gin.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	return skip, limit
}
