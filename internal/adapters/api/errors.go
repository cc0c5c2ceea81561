package api

import (
	"errors"
	"net/http"

	"cloudipam/internal/domain/ipam"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP status codes: not-found to 404,
// conflicts on stored state to 409, everything the client can fix in the
// request itself to 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ipam.ErrVRFNotFound),
		errors.Is(err, ipam.ErrVPCNotFound),
		errors.Is(err, ipam.ErrPrefixNotFound),
		errors.Is(err, ipam.ErrAssociationNotFound):
		return http.StatusNotFound

	case errors.Is(err, ipam.ErrDuplicateCIDR),
		errors.Is(err, ipam.ErrSiblingOverlap),
		errors.Is(err, ipam.ErrDuplicateVRF),
		errors.Is(err, ipam.ErrDuplicateVPC),
		errors.Is(err, ipam.ErrDuplicateAssociation),
		errors.Is(err, ipam.ErrParameterMismatch),
		errors.Is(err, ipam.ErrNoSpaceAvailable),
		errors.Is(err, ipam.ErrPrefixHasChildren),
		errors.Is(err, ipam.ErrPrefixAssociated),
		errors.Is(err, ipam.ErrVRFReferenced),
		errors.Is(err, ipam.ErrVPCReferenced),
		errors.Is(err, ipam.ErrDefaultVRFExists):
		return http.StatusConflict

	case errors.Is(err, ipam.ErrInvalidCIDR),
		errors.Is(err, ipam.ErrInvalidMaskLength),
		errors.Is(err, ipam.ErrFamilyMismatch),
		errors.Is(err, ipam.ErrParentMismatch),
		errors.Is(err, ipam.ErrInvalidProvider),
		errors.Is(err, ipam.ErrVPCChildrenOnly),
		errors.Is(err, ipam.ErrVPCSourcedImmutable),
		errors.Is(err, ipam.ErrVRFReserved),
		errors.Is(err, ipam.ErrAssociationPolicy):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
