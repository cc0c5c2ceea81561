package ipam

import (
	"net/netip"
	"time"
)

// Source tells who owns a prefix: operators (manual) or the reconciler (vpc).
type Source string

const (
	SourceManual Source = "manual"
	SourceVPC    Source = "vpc"
)

// Prefix is one node of the containment tree. The identifier is derived
// deterministically from the source (see ManualPrefixID and friends), so the
// same network always maps to the same id across restarts.
type Prefix struct {
	ID               string       `json:"prefix_id"`
	VRFID            string       `json:"vrf_id"`
	CIDR             netip.Prefix `json:"cidr"`
	Tags             Tags         `json:"tags"`
	IndentationLevel int          `json:"indentation_level"`
	ParentPrefixID   string       `json:"parent_prefix_id,omitempty"`
	Source           Source       `json:"source"`
	Routable         bool         `json:"routable"`
	VPCChildrenType  bool         `json:"vpc_children_type_flag"`
	VPCID            string       `json:"vpc_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Tombstoned reports whether the reconciler has soft-deleted this prefix.
func (p *Prefix) Tombstoned() bool {
	_, ok := p.Tags[TagDeletedFromAWS]
	return ok
}

// ManualPrefixID derives the identifier of a manual prefix,
// e.g. manual-prod-vrf-10-0-0-0-16.
func ManualPrefixID(vrfID string, cidr netip.Prefix) string {
	return "manual-" + vrfID + "-" + DashCIDR(cidr)
}

// VPCSubnetPrefixID derives the identifier of a VPC-sourced subnet or a
// VPC-attached public IP. IPv6 networks are fully expanded before dashing.
func VPCSubnetPrefixID(vpcID string, cidr netip.Prefix) string {
	return vpcID + "-subnet-" + DashCIDR(cidr)
}

// PublicIPPrefixID derives the identifier of a standalone public IP prefix.
func PublicIPPrefixID(cidr netip.Prefix) string {
	return "public-ip-" + DashCIDR(cidr)
}

// PrefixCreateRequest carries the data needed to create a manual prefix.
type PrefixCreateRequest struct {
	VRFID           string `json:"vrf_id" binding:"required"`
	CIDR            string `json:"cidr" binding:"required"`
	ParentPrefixID  string `json:"parent_prefix_id,omitempty"`
	Tags            Tags   `json:"tags,omitempty"`
	Routable        *bool  `json:"routable,omitempty"`
	VPCChildrenType bool   `json:"vpc_children_type_flag,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

// PrefixUpdateRequest carries the mutable fields of a manual prefix; nil
// means unchanged.
type PrefixUpdateRequest struct {
	Tags            Tags   `json:"tags,omitempty"`
	Routable        *bool  `json:"routable,omitempty"`
	VPCChildrenType *bool  `json:"vpc_children_type_flag,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

// PublicIPCreateRequest creates a public IP prefix in public-vrf. With a
// VPCID the prefix is VPC-attached (source=vpc); without one it is a
// standalone manual entry.
type PublicIPCreateRequest struct {
	VPCID     string `json:"vpc_id,omitempty"`
	CIDR      string `json:"cidr" binding:"required"`
	Tags      Tags   `json:"tags,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PrefixFilter selects prefixes for list queries. Zero values mean "any".
type PrefixFilter struct {
	VRFID             string
	Routable          *bool
	Source            Source
	Provider          Provider
	ProviderAccountID string
}

// AllocationRequest asks the allocator for a first-fit subnet.
type AllocationRequest struct {
	VRFID           string `json:"vrf_id" binding:"required"`
	MaskLength      int    `json:"mask_length" binding:"required"`
	Tags            Tags   `json:"tags,omitempty"`
	Routable        *bool  `json:"routable,omitempty"`
	ParentPrefixID  string `json:"parent_prefix_id,omitempty"`
	Description     string `json:"description,omitempty"`
	VPCChildrenType bool   `json:"vpc_children_type_flag,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

// Allocation reports the outcome of AllocateSubnet. AvailableCount is
// advisory: the allocator stops scanning once a small bound is reached.
type Allocation struct {
	PrefixID       string    `json:"prefix_id"`
	AllocatedCIDR  string    `json:"allocated_cidr"`
	ParentPrefixID string    `json:"parent_prefix_id"`
	ParentCIDR     string    `json:"parent_cidr"`
	AvailableCount int       `json:"available_count"`
	Tags           Tags      `json:"tags"`
	Routable       bool      `json:"routable"`
	CreatedAt      time.Time `json:"created_at"`
}

// Capability is the answer to a can-create-child / can-associate-vpc probe.
type Capability struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
