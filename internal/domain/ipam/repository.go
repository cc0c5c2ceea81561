package ipam

import (
	"context"
	"net/netip"
)

// Repository is the persistence contract for the prefix store. Every
// mutation is atomic; constraint violations surface as the typed errors in
// errors.go, never as partial state.
type Repository interface {
	// VRFs
	CreateVRF(ctx context.Context, vrf *VRF) error
	GetVRF(ctx context.Context, vrfID string) (*VRF, error)
	ListVRFs(ctx context.Context) ([]*VRF, error)
	UpdateVRF(ctx context.Context, vrf *VRF) error
	DeleteVRF(ctx context.Context, vrfID string) error

	// VPCs
	CreateVPC(ctx context.Context, vpc *VPC) error
	GetVPC(ctx context.Context, vpcID string) (*VPC, error)
	GetVPCByProviderKey(ctx context.Context, provider Provider, accountID, providerVPCID string) (*VPC, error)
	ListVPCs(ctx context.Context) ([]*VPC, error)
	ListVPCsByProvider(ctx context.Context, provider Provider) ([]*VPC, error)
	UpdateVPC(ctx context.Context, vpc *VPC) error
	DeleteVPC(ctx context.Context, vpcID string) error

	// Prefixes
	CreatePrefix(ctx context.Context, prefix *Prefix) error
	GetPrefix(ctx context.Context, prefixID string) (*Prefix, error)
	GetPrefixByCIDR(ctx context.Context, vrfID string, cidr netip.Prefix) (*Prefix, error)
	UpdatePrefix(ctx context.Context, prefix *Prefix) error
	DeletePrefix(ctx context.Context, prefixID string) error
	ListChildren(ctx context.Context, parentPrefixID string) ([]*Prefix, error)
	ListRootPrefixes(ctx context.Context, vrfID string) ([]*Prefix, error)
	ListPrefixes(ctx context.Context, filter PrefixFilter) ([]*Prefix, error)
	ListVPCSubnets(ctx context.Context, vpcID string) ([]*Prefix, error)
	CountPrefixesByVRF(ctx context.Context, vrfID string) (int, error)

	// Associations
	CreateAssociation(ctx context.Context, assoc *VPCPrefixAssociation) error
	GetAssociation(ctx context.Context, associationID string) (*VPCPrefixAssociation, error)
	ListAssociationsByVPC(ctx context.Context, vpcID string) ([]*VPCPrefixAssociation, error)
	ListAssociationsByPrefix(ctx context.Context, parentPrefixID string) ([]*VPCPrefixAssociation, error)
	DeleteAssociation(ctx context.Context, associationID string) error

	// Idempotency
	CreateIdempotencyRecord(ctx context.Context, rec *IdempotencyRecord) error
	GetIdempotencyRecord(ctx context.Context, requestID string) (*IdempotencyRecord, error)
	CountIdempotencyRecords(ctx context.Context) (int, error)
}
