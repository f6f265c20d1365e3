package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quotebridge-backend/internal/http/response"
	"github.com/yungbote/quotebridge-backend/internal/platform/apierr"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

var errAttachmentsDisabled = apierr.New(http.StatusServiceUnavailable, "attachments_disabled", errors.New("attachment storage is not configured"))

type NegotiationHandler struct {
	negotiations services.NegotiationService
	attachments  services.AttachmentService
}

func NewNegotiationHandler(negotiations services.NegotiationService, attachments services.AttachmentService) *NegotiationHandler {
	return &NegotiationHandler{negotiations: negotiations, attachments: attachments}
}

// POST /api/negotiations
func (h *NegotiationHandler) Create(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.NegotiationRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	out, err := h.negotiations.Open(c.Request.Context(), actor, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, out)
}

// GET /api/negotiations/:id
func (h *NegotiationHandler) Get(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	detail, err := h.negotiations.GetSession(c.Request.Context(), actor, sessionID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// POST /api/negotiations/:id/response
func (h *NegotiationHandler) Respond(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.NegotiationResponse
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	req.SessionID = sessionID
	out, err := h.negotiations.Respond(c.Request.Context(), actor, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/negotiations/:id/cancel
func (h *NegotiationHandler) Cancel(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	session, err := h.negotiations.Cancel(c.Request.Context(), actor, sessionID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// POST /api/negotiations/:id/comments
func (h *NegotiationHandler) AddComment(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.CommentRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	comment, err := h.negotiations.AddComment(c.Request.Context(), actor, sessionID, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"comment": comment})
}

// POST /api/negotiations/:id/attachments
func (h *NegotiationHandler) AddAttachment(c *gin.Context) {
	if h.attachments == nil {
		response.RespondErr(c, errAttachmentsDisabled)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.AttachmentRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	att, err := h.attachments.AddAttachment(c.Request.Context(), actor, sessionID, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"attachment": att})
}

// GET /api/negotiations/:id/attachments
func (h *NegotiationHandler) ListAttachments(c *gin.Context) {
	if h.attachments == nil {
		response.RespondErr(c, errAttachmentsDisabled)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessionID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	views, err := h.attachments.ListAttachments(c.Request.Context(), actor, sessionID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attachments": views})
}
