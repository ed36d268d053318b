// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
)

// ResponseHelper writes the JSON error shapes of the API.
type ResponseHelper struct {
	logger *utils.Logger
}

// NewResponseHelper creates a helper logging through logger.
func NewResponseHelper(logger *utils.Logger) *ResponseHelper {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ResponseHelper{logger: logger}
}

// Error writes err with the status of its kind. Admission failures keep
// their generic message; every other failure becomes a bare 5xx.
func (rh *ResponseHelper) Error(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusBadRequest && errors.As(err, &appErr):
		rh.Validation(c, []models.ValidationIssue{{Param: "", Msg: appErr.Message}})
		return
	case status == http.StatusUnauthorized || status == http.StatusTooManyRequests:
		message := MsgInvalidToken
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
		c.AbortWithStatusJSON(status, gin.H{"error": message})
		return
	}

	rh.logger.Error("request failed", map[string]interface{}{
		"request_id": requestID(c),
		"path":       c.Request.URL.Path,
		"kind":       string(apperrors.TypeOf(err)),
		"status":     status,
		"error":      err.Error(),
	})
	c.AbortWithStatusJSON(status, gin.H{"error": MsgInternalError})
}

// Validation writes a 400 {errors:[...]} body.
func (rh *ResponseHelper) Validation(c *gin.Context, issues []models.ValidationIssue) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": issues})
}

// Forbidden writes a 403.
func (rh *ResponseHelper) Forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": MsgForbidden})
}

// DecodeJSON decodes the body into dst. It writes the error response itself
// and reports whether the handler may continue.
func (rh *ResponseHelper) DecodeJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": MsgBodyTooLarge})
		} else {
			rh.Validation(c, []models.ValidationIssue{{Param: "", Msg: MsgInvalidBody}})
		}
		return false
	}
	return true
}

// BindJSON decodes the body into dst and validates it.
func (rh *ResponseHelper) BindJSON(c *gin.Context, dst interface{}) bool {
	if !rh.DecodeJSON(c, dst) {
		return false
	}
	if issues := models.Validate(dst); issues != nil {
		rh.Validation(c, issues)
		return false
	}
	return true
}
