package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/platform/apierr"
)

func TestRespondErrMapsCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domainagg.Newf(domainagg.CodeValidation, "op", "bad"), http.StatusBadRequest, "validation"},
		{domainagg.Newf(domainagg.CodeForbidden, "op", "no"), http.StatusForbidden, "forbidden"},
		{domainagg.Newf(domainagg.CodeNotFound, "op", "gone"), http.StatusNotFound, "not_found"},
		{domainagg.Newf(domainagg.CodeConflict, "op", "already resolved"), http.StatusConflict, "conflict"},
		{domainagg.Newf(domainagg.CodeInvariantViolation, "op", "x"), http.StatusConflict, "invariant_violation"},
		{domainagg.Newf(domainagg.CodePreconditionFailed, "op", "x"), http.StatusConflict, "precondition_failed"},
		{domainagg.Newf(domainagg.CodeRetryable, "op", "busy"), http.StatusServiceUnavailable, "retryable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
		{apierr.Unauthorized(errors.New("no token")), http.StatusUnauthorized, "unauthorized"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		RespondErr(c, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: want status %d got %d", tc.err, tc.status, rec.Code)
		}
		var env ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Error.Code != tc.code || env.Error.Message == "" {
			t.Fatalf("%v: unexpected envelope %+v", tc.err, env)
		}
	}
}
