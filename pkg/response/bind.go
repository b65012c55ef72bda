package response

import (
	"github.com/gin-gonic/gin"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/validator"
)

// BindError reports a gin binding failure as a 400.
func BindError(c *gin.Context, err error) {
	ResponseError(c, apperror.Validation(validator.FormatValidationError(err)))
}
