package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/apperror"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps a service error onto the response envelope
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)

	var appErr *apperror.Error
	if !errors.As(err, &appErr) || kind == apperror.KindInternal {
		_ = c.Error(err)
		c.JSON(status, response.ErrorWithCode(status, string(apperror.KindInternal), "Internal server error", nil))
		return
	}
	c.JSON(status, response.ErrorWithCode(status, string(kind), appErr.Message, appErr.Details))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperror.KindValidationFailed), msg, nil))
}

// requestContext carries the authenticated caller into service calls for auditing
func requestContext(c *gin.Context) context.Context {
	return service.WithActor(c.Request.Context(), c.GetString(middleware.UserIDKey))
}

func parseRecordID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid record id")
		return 0, false
	}
	return uint(id), true
}
