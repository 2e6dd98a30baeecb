// Package handlers implements the HTTP endpoints of the MorphoScreen API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// errorResponse is the uniform error body of the API.
type errorResponse struct {
	Error common.ErrorDetail `json:"error"`
}

// respondError maps an application error onto an HTTP status and the
// structured error body. Unknown errors never leak internals to clients.
func respondError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	if appErr == nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: common.ErrorDetail{
			Code:    errors.ErrCodeInternal.String(),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		}})
		return
	}
	status := errors.HTTPStatusForCode(appErr.Code)
	detail := appErr.Detail
	if status == http.StatusInternalServerError {
		detail = ""
		_ = c.Error(err)
	}
	message := appErr.Message
	if message == "" {
		message = errors.DefaultMessageForCode(appErr.Code)
	}
	c.JSON(status, errorResponse{Error: common.ErrorDetail{
		Code:    appErr.Code.String(),
		Message: message,
		Detail:  detail,
	}})
}

// listResponse wraps a paginated collection.
type listResponse struct {
	Items      interface{}       `json:"items"`
	Pagination common.Pagination `json:"pagination"`
}

func paginationFromQuery(c *gin.Context) common.Pagination {
	p := common.Pagination{}
	if v, err := atoiQuery(c, "page"); err == nil {
		p.Page = v
	}
	if v, err := atoiQuery(c, "page_size"); err == nil {
		p.PageSize = v
	}
	return p.Normalize()
}

func atoiQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(raw)
}
