package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/pkg/response"
	"github.com/iYoNuttxD/user-service-microservice/pkg/validation"
)

const codeInvalidPayload = "invalid_payload"

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status its kind maps to. Unknown and
// internal errors are logged and answered with a generic message.
func writeError(c *gin.Context, logger logrus.FieldLogger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.Internal(err)
	}
	status := statusFor(de.Kind)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		}).Error("request failed")
		response.JSON(c, response.Error[any](c, status, "internal server error", response.ErrorBody{Code: domain.CodeInternal}))
		return
	}
	response.JSON(c, response.Error[any](c, status, de.Message, response.ErrorBody{Code: de.Code, Details: de.Meta}))
}

func writeBindError(c *gin.Context, err error) {
	response.JSON(c, response.Error[any](c, http.StatusBadRequest, "invalid payload",
		response.ErrorBody{Code: codeInvalidPayload, Details: validation.ToDetails(err)}))
}

func writeUnauthenticated(c *gin.Context) {
	response.JSON(c, response.Error[any](c, http.StatusUnauthorized, "authentication required",
		response.ErrorBody{Code: domain.CodeMissingCredentials}))
}
