package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quotebridge-backend/internal/platform/apierr"
	"github.com/yungbote/quotebridge-backend/internal/platform/ctxutil"
)

func actorID(c *gin.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, apierr.Unauthorized(errors.New("missing caller identity"))
	}
	return rd.UserID, nil
}

func idParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apierr.BadRequest("invalid_"+name, fmt.Errorf("invalid %s: %q", name, c.Param(name)))
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apierr.BadRequest("invalid_request", err)
	}
	return nil
}
