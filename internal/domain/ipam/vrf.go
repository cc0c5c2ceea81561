package ipam

import "fmt"

// PublicVRFID is the reserved routing domain that holds public internet
// addresses.
const PublicVRFID = "public-vrf"

// VRF is an isolated routing domain. CIDRs are unique within one VRF.
type VRF struct {
	ID           string `json:"vrf_id"`
	Description  string `json:"description,omitempty"`
	Tags         Tags   `json:"tags"`
	RoutableFlag bool   `json:"routable_flag"`
	IsDefault    bool   `json:"is_default"`
}

// VRFCreateRequest carries the data needed to create a routing domain.
type VRFCreateRequest struct {
	VRFID        string `json:"vrf_id" binding:"required"`
	Description  string `json:"description,omitempty"`
	Tags         Tags   `json:"tags,omitempty"`
	RoutableFlag *bool  `json:"routable_flag,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// VRFUpdateRequest carries the mutable VRF fields; nil means unchanged.
type VRFUpdateRequest struct {
	Description  *string `json:"description,omitempty"`
	Tags         Tags    `json:"tags,omitempty"`
	RoutableFlag *bool   `json:"routable_flag,omitempty"`
	IsDefault    *bool   `json:"is_default,omitempty"`
	RequestID    string  `json:"request_id,omitempty"`
}

// AutoVRFID is the naming convention for VRFs auto-created by the reconciler
// for non-routable per-VPC address space.
func AutoVRFID(vpc *VPC) string {
	return fmt.Sprintf("%s_%s_%s", vpc.Provider, vpc.ProviderAccountID, vpc.ProviderVPCID)
}
