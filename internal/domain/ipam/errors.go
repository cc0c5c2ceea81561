package ipam

import "errors"

// Validation errors
var (
	ErrInvalidCIDR       = errors.New("invalid CIDR format")
	ErrInvalidMaskLength = errors.New("invalid subnet mask length")
	ErrFamilyMismatch    = errors.New("IP version mismatch")
	ErrParentMismatch    = errors.New("prefix is not contained in parent")
	ErrInvalidProvider   = errors.New("unknown cloud provider")
)

// Conflict errors
var (
	ErrDuplicateCIDR        = errors.New("prefix already exists in VRF")
	ErrSiblingOverlap       = errors.New("prefix overlaps a sibling prefix")
	ErrDuplicateVRF         = errors.New("VRF already exists")
	ErrDuplicateVPC         = errors.New("VPC already exists")
	ErrDuplicateAssociation = errors.New("VPC is already associated with this prefix CIDR")
	ErrAssociationPolicy    = errors.New("association violates prefix policy")
	ErrParameterMismatch    = errors.New("request id was previously used with different parameters")
)

// Policy errors
var (
	ErrVPCSourcedImmutable = errors.New("VPC-sourced prefixes are owned by the reconciler")
	ErrPrefixHasChildren   = errors.New("prefix has child prefixes")
	ErrPrefixAssociated    = errors.New("prefix is referenced by a VPC association")
	ErrVPCChildrenOnly     = errors.New("prefix admits only VPC-sourced children")
	ErrVRFReferenced       = errors.New("VRF is referenced by prefixes")
	ErrVRFReserved         = errors.New("VRF is reserved and cannot be deleted")
	ErrDefaultVRFExists    = errors.New("another VRF is already marked default")
	ErrVPCReferenced       = errors.New("VPC is referenced by prefixes or associations")
)

// Not-found errors
var (
	ErrVRFNotFound         = errors.New("VRF not found")
	ErrVPCNotFound         = errors.New("VPC not found")
	ErrPrefixNotFound      = errors.New("prefix not found")
	ErrAssociationNotFound = errors.New("association not found")
)

// Allocator errors
var ErrNoSpaceAvailable = errors.New("no available subnets in matching parent prefixes")

// Idempotency store errors
var ErrDuplicateRequestID = errors.New("idempotency record already exists")
