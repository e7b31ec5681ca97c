// internal/pkg/response/errors.go
package response

import (
	"errors"
	"net/http"

	xerrors "soko-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// FromError maps domain sentinels onto HTTP statuses and writes the
// standard envelope. Unrecognized errors become a 500 with the given
// fallback message.
func FromError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		Error(c, http.StatusNotFound, "resource not found", err)
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrBadRequest):
		Error(c, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, xerrors.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, xerrors.ErrForbidden):
		Error(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, xerrors.ErrInvalidTransition):
		Error(c, http.StatusConflict, "invalid subscription transition", err)
	case errors.Is(err, xerrors.ErrLimitReached):
		Error(c, http.StatusConflict, "feature limit reached", err)
	case errors.Is(err, xerrors.ErrPlanInUse):
		Error(c, http.StatusConflict, "plan is in use", err)
	case errors.Is(err, xerrors.ErrConflict), errors.Is(err, xerrors.ErrDuplicateEntry):
		Error(c, http.StatusConflict, "conflict", err)
	default:
		Error(c, http.StatusInternalServerError, fallback, err)
	}
}
