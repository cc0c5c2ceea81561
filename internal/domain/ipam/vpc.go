package ipam

// Provider identifies a cloud provider.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
	ProviderOther Provider = "other"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderAzure, ProviderGCP, ProviderOther:
		return true
	}
	return false
}

// VPC mirrors a cloud-provider virtual private cloud. Its subnets appear in
// the tree as source=vpc prefixes. The natural key is
// (provider, provider_account_id, provider_vpc_id).
type VPC struct {
	ID                string   `json:"vpc_id"`
	Description       string   `json:"description,omitempty"`
	Provider          Provider `json:"provider"`
	ProviderAccountID string   `json:"provider_account_id"`
	ProviderVPCID     string   `json:"provider_vpc_id"`
	Region            string   `json:"region,omitempty"`
	Tags              Tags     `json:"tags"`
}

// VPCCreateRequest carries the data needed to register a VPC.
type VPCCreateRequest struct {
	Description       string   `json:"description,omitempty"`
	Provider          Provider `json:"provider" binding:"required"`
	ProviderAccountID string   `json:"provider_account_id" binding:"required"`
	ProviderVPCID     string   `json:"provider_vpc_id" binding:"required"`
	Region            string   `json:"region,omitempty"`
	Tags              Tags     `json:"tags,omitempty"`
	RequestID         string   `json:"request_id,omitempty"`
}

// VPCUpdateRequest carries the mutable VPC fields; nil means unchanged.
type VPCUpdateRequest struct {
	Description *string `json:"description,omitempty"`
	Region      *string `json:"region,omitempty"`
	Tags        Tags    `json:"tags,omitempty"`
	RequestID   string  `json:"request_id,omitempty"`
}
