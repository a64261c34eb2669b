package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/pkg/response"
)

// respondError maps a domain error onto the API error taxonomy
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case domain.IsUnauthorizedError(err):
		response.Unauthorized(c, err.Error())
	case domain.IsRateLimitedError(err):
		response.TooManyRequests(c, err.Error())
	case domain.IsConflictError(err):
		response.Conflict(c, err.Error())
	case domain.IsValidationError(err):
		response.UnprocessableEntity(c, "Validation failed", err.Error())
	case errors.Is(err, domain.ErrGenerationFailed):
		response.Error(c, http.StatusBadGateway, "PLATFORM_GENERATION_FAILED", "Platform pass generation failed", err.Error())
	case errors.Is(err, domain.ErrUpdateExhausted):
		response.Error(c, http.StatusInternalServerError, "UPDATE_EXHAUSTED", "Update retries exhausted", err.Error())
	default:
		response.InternalError(c, err)
	}
}
