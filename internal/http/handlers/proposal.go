package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quotebridge-backend/internal/http/response"
	"github.com/yungbote/quotebridge-backend/internal/platform/apierr"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

type ProposalHandler struct {
	proposals    services.ProposalService
	ledger       services.LineItemLedger
	identity     services.IdentityOracle
	versions     services.VersionComparer
	negotiations services.NegotiationService
}

func NewProposalHandler(
	proposals services.ProposalService,
	ledger services.LineItemLedger,
	identity services.IdentityOracle,
	versions services.VersionComparer,
	negotiations services.NegotiationService,
) *ProposalHandler {
	return &ProposalHandler{
		proposals:    proposals,
		ledger:       ledger,
		identity:     identity,
		versions:     versions,
		negotiations: negotiations,
	}
}

// POST /api/projects/:id/proposals
func (h *ProposalHandler) Submit(c *gin.Context) {
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
	var req services.SubmitProposalRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	req.ProjectID = projectID
	out, err := h.proposals.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, out)
}

// GET /api/proposals/:id/line-items?version_id=
func (h *ProposalHandler) ListLineItems(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	proposalID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var versionID *uuid.UUID
	if raw := c.Query("version_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondErr(c, apierr.BadRequest("invalid_version_id", err))
			return
		}
		versionID = &id
	}
	if _, err := h.identity.RequireProposalViewer(c.Request.Context(), actor, proposalID); err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.ledger.ListForVersion(c.Request.Context(), proposalID, versionID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/proposals/:id/versions
func (h *ProposalHandler) ListVersions(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	proposalID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), actor, proposalID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"versions": versions})
}

// GET /api/proposals/:id/versions/compare?from=&to=
func (h *ProposalHandler) CompareVersions(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	proposalID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	from, err := versionQuery(c, "from")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	to, err := versionQuery(c, "to")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	cmp, err := h.versions.CompareVersions(c.Request.Context(), actor, proposalID, from, to)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, cmp)
}

// GET /api/proposals/:id/negotiations
func (h *ProposalHandler) ListNegotiations(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	proposalID, err := idParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	sessions, err := h.negotiations.ListSessions(c.Request.Context(), actor, proposalID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

func versionQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apierr.BadRequest("invalid_"+key, fmt.Errorf("%s must be a positive version number, got %q", key, raw))
	}
	return n, nil
}
