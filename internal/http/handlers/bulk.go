package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/quotebridge-backend/internal/http/response"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

type BulkNegotiationHandler struct {
	bulk services.BulkBatchCoordinator
}

func NewBulkNegotiationHandler(bulk services.BulkBatchCoordinator) *BulkNegotiationHandler {
	return &BulkNegotiationHandler{bulk: bulk}
}

// POST /api/projects/:id/bulk-negotiations
//
// Per-proposal failures are reported in the body; the request itself succeeds
// once the batch row exists.
func (h *BulkNegotiationHandler) Create(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	projectID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.BulkNegotiationRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	req.ProjectID = projectID
	out, err := h.bulk.CreateBatch(c.Request.Context(), actor, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, out)
}

// GET /api/projects/:id/bulk-negotiations
func (h *BulkNegotiationHandler) History(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	projectID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	hist, err := h.bulk.ListHistory(c.Request.Context(), actor, projectID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, hist)
}
