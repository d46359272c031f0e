package middleware

import (
	"net/http"

	apiError "school-collab/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
)

// statusByKind maps collaboration failures that reach a relay handler
var statusByKind = map[apiError.Kind]int{
	apiError.KindDecode:       http.StatusBadRequest,
	apiError.KindUnauthorized: http.StatusUnauthorized,
	apiError.KindAuthTimeout:  http.StatusGatewayTimeout,
	apiError.KindTransport:    http.StatusBadGateway,
	apiError.KindNotConnected: http.StatusServiceUnavailable,
}

// ErrorHandler renders the last handler error as an APIError body. Errors
// that are neither APIError nor a known CollabError kind become a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		apiErr := toAPIError(c.Errors.Last().Err)

		if apiErr.Status >= 500 {
			glog.Errorf("[http]%s %s: %v", c.Request.Method, c.FullPath(), apiErr.Internal)
		} else {
			glog.V(1).Infof("[http]%s %s %d %s: %v", c.Request.Method, c.FullPath(), apiErr.Status, apiErr.Message, apiErr.Internal)
		}
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
	}
}

func toAPIError(err error) *apiError.APIError {
	var apiErr *apiError.APIError
	if apiError.As(err, &apiErr) {
		return apiErr
	}

	var collabErr *apiError.CollabError
	if !apiError.As(err, &collabErr) {
		return apiError.Internal(err)
	}
	if collabErr.Kind == apiError.KindValidation {
		return apiError.NewValidationError(err)
	}
	status, ok := statusByKind[collabErr.Kind]
	if !ok {
		return apiError.Internal(err)
	}
	return &apiError.APIError{Status: status, Message: collabErr.Message, Internal: err}
}
