package memory

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"time"

	"cloudipam/internal/domain/ipam"
)

// Repository is a mutex-guarded in-memory implementation of ipam.Repository.
// It backs the application tests and the DB-disabled demo mode, and mirrors
// the constraint behavior of the Postgres adapter (unique keys surface the
// same typed errors).
type Repository struct {
	mu           sync.RWMutex
	vrfs         map[string]*ipam.VRF
	vpcs         map[string]*ipam.VPC
	prefixes     map[string]*ipam.Prefix
	associations map[string]*ipam.VPCPrefixAssociation
	idempotency  map[string]*ipam.IdempotencyRecord
}

// NewRepository creates an empty store with the reserved public-vrf seeded.
func NewRepository() *Repository {
	r := &Repository{
		vrfs:         make(map[string]*ipam.VRF),
		vpcs:         make(map[string]*ipam.VPC),
		prefixes:     make(map[string]*ipam.Prefix),
		associations: make(map[string]*ipam.VPCPrefixAssociation),
		idempotency:  make(map[string]*ipam.IdempotencyRecord),
	}
	r.vrfs[ipam.PublicVRFID] = &ipam.VRF{
		ID:           ipam.PublicVRFID,
		Description:  "Public internet addresses",
		Tags:         ipam.Tags{},
		RoutableFlag: true,
	}
	return r
}

func cloneVRF(v *ipam.VRF) *ipam.VRF {
	out := *v
	out.Tags = v.Tags.Clone()
	return &out
}

func cloneVPC(v *ipam.VPC) *ipam.VPC {
	out := *v
	out.Tags = v.Tags.Clone()
	return &out
}

func clonePrefix(p *ipam.Prefix) *ipam.Prefix {
	out := *p
	out.Tags = p.Tags.Clone()
	return &out
}

func cloneAssociation(a *ipam.VPCPrefixAssociation) *ipam.VPCPrefixAssociation {
	out := *a
	return &out
}

// VRFs

func (r *Repository) CreateVRF(_ context.Context, vrf *ipam.VRF) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vrfs[vrf.ID]; exists {
		return ipam.ErrDuplicateVRF
	}
	r.vrfs[vrf.ID] = cloneVRF(vrf)
	return nil
}

func (r *Repository) GetVRF(_ context.Context, vrfID string) (*ipam.VRF, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vrf, ok := r.vrfs[vrfID]
	if !ok {
		return nil, ipam.ErrVRFNotFound
	}
	return cloneVRF(vrf), nil
}

func (r *Repository) ListVRFs(_ context.Context) ([]*ipam.VRF, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.VRF, 0, len(r.vrfs))
	for _, vrf := range r.vrfs {
		out = append(out, cloneVRF(vrf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) UpdateVRF(_ context.Context, vrf *ipam.VRF) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vrfs[vrf.ID]; !ok {
		return ipam.ErrVRFNotFound
	}
	r.vrfs[vrf.ID] = cloneVRF(vrf)
	return nil
}

func (r *Repository) DeleteVRF(_ context.Context, vrfID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vrfs[vrfID]; !ok {
		return ipam.ErrVRFNotFound
	}
	delete(r.vrfs, vrfID)
	return nil
}

// VPCs

func (r *Repository) CreateVPC(_ context.Context, vpc *ipam.VPC) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vpcs[vpc.ID]; exists {
		return ipam.ErrDuplicateVPC
	}
	for _, existing := range r.vpcs {
		if existing.Provider == vpc.Provider &&
			existing.ProviderAccountID == vpc.ProviderAccountID &&
			existing.ProviderVPCID == vpc.ProviderVPCID {
			return ipam.ErrDuplicateVPC
		}
	}
	r.vpcs[vpc.ID] = cloneVPC(vpc)
	return nil
}

func (r *Repository) GetVPC(_ context.Context, vpcID string) (*ipam.VPC, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vpc, ok := r.vpcs[vpcID]
	if !ok {
		return nil, ipam.ErrVPCNotFound
	}
	return cloneVPC(vpc), nil
}

func (r *Repository) GetVPCByProviderKey(_ context.Context, provider ipam.Provider, accountID, providerVPCID string) (*ipam.VPC, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, vpc := range r.vpcs {
		if vpc.Provider == provider && vpc.ProviderAccountID == accountID && vpc.ProviderVPCID == providerVPCID {
			return cloneVPC(vpc), nil
		}
	}
	return nil, ipam.ErrVPCNotFound
}

func (r *Repository) ListVPCs(_ context.Context) ([]*ipam.VPC, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.VPC, 0, len(r.vpcs))
	for _, vpc := range r.vpcs {
		out = append(out, cloneVPC(vpc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) ListVPCsByProvider(_ context.Context, provider ipam.Provider) ([]*ipam.VPC, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.VPC, 0)
	for _, vpc := range r.vpcs {
		if vpc.Provider == provider {
			out = append(out, cloneVPC(vpc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) UpdateVPC(_ context.Context, vpc *ipam.VPC) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vpcs[vpc.ID]; !ok {
		return ipam.ErrVPCNotFound
	}
	r.vpcs[vpc.ID] = cloneVPC(vpc)
	return nil
}

func (r *Repository) DeleteVPC(_ context.Context, vpcID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vpcs[vpcID]; !ok {
		return ipam.ErrVPCNotFound
	}
	delete(r.vpcs, vpcID)
	return nil
}

// Prefixes

func (r *Repository) CreatePrefix(_ context.Context, prefix *ipam.Prefix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prefixes[prefix.ID]; exists {
		return ipam.ErrDuplicateCIDR
	}
	for _, existing := range r.prefixes {
		if existing.VRFID == prefix.VRFID && existing.CIDR == prefix.CIDR {
			return ipam.ErrDuplicateCIDR
		}
	}
	now := time.Now().UTC()
	p := clonePrefix(prefix)
	p.CreatedAt = now
	p.UpdatedAt = now
	r.prefixes[p.ID] = p
	prefix.CreatedAt = now
	prefix.UpdatedAt = now
	return nil
}

func (r *Repository) GetPrefix(_ context.Context, prefixID string) (*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefixes[prefixID]
	if !ok {
		return nil, ipam.ErrPrefixNotFound
	}
	return clonePrefix(p), nil
}

func (r *Repository) GetPrefixByCIDR(_ context.Context, vrfID string, cidr netip.Prefix) (*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.prefixes {
		if p.VRFID == vrfID && p.CIDR == cidr {
			return clonePrefix(p), nil
		}
	}
	return nil, ipam.ErrPrefixNotFound
}

func (r *Repository) UpdatePrefix(_ context.Context, prefix *ipam.Prefix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prefixes[prefix.ID]; !ok {
		return ipam.ErrPrefixNotFound
	}
	p := clonePrefix(prefix)
	p.UpdatedAt = time.Now().UTC()
	r.prefixes[p.ID] = p
	prefix.UpdatedAt = p.UpdatedAt
	return nil
}

func (r *Repository) DeletePrefix(_ context.Context, prefixID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prefixes[prefixID]; !ok {
		return ipam.ErrPrefixNotFound
	}
	delete(r.prefixes, prefixID)
	return nil
}

func sortByAddr(prefixes []*ipam.Prefix) {
	sort.Slice(prefixes, func(i, j int) bool {
		a, b := prefixes[i].CIDR, prefixes[j].CIDR
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c < 0
		}
		return a.Bits() < b.Bits()
	})
}

func (r *Repository) ListChildren(_ context.Context, parentPrefixID string) ([]*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.Prefix, 0)
	for _, p := range r.prefixes {
		if p.ParentPrefixID == parentPrefixID {
			out = append(out, clonePrefix(p))
		}
	}
	sortByAddr(out)
	return out, nil
}

func (r *Repository) ListRootPrefixes(_ context.Context, vrfID string) ([]*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.Prefix, 0)
	for _, p := range r.prefixes {
		if p.VRFID == vrfID && p.ParentPrefixID == "" {
			out = append(out, clonePrefix(p))
		}
	}
	sortByAddr(out)
	return out, nil
}

func (r *Repository) ListPrefixes(_ context.Context, filter ipam.PrefixFilter) ([]*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.Prefix, 0)
	for _, p := range r.prefixes {
		if filter.VRFID != "" && p.VRFID != filter.VRFID {
			continue
		}
		if filter.Routable != nil && p.Routable != *filter.Routable {
			continue
		}
		if filter.Source != "" && p.Source != filter.Source {
			continue
		}
		if filter.Provider != "" || filter.ProviderAccountID != "" {
			if p.VPCID == "" {
				continue
			}
			vpc, ok := r.vpcs[p.VPCID]
			if !ok {
				continue
			}
			if filter.Provider != "" && vpc.Provider != filter.Provider {
				continue
			}
			if filter.ProviderAccountID != "" && vpc.ProviderAccountID != filter.ProviderAccountID {
				continue
			}
		}
		out = append(out, clonePrefix(p))
	}
	sortByAddr(out)
	return out, nil
}

func (r *Repository) ListVPCSubnets(_ context.Context, vpcID string) ([]*ipam.Prefix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.Prefix, 0)
	for _, p := range r.prefixes {
		if p.VPCID == vpcID && p.Source == ipam.SourceVPC {
			out = append(out, clonePrefix(p))
		}
	}
	sortByAddr(out)
	return out, nil
}

func (r *Repository) CountPrefixesByVRF(_ context.Context, vrfID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, p := range r.prefixes {
		if p.VRFID == vrfID {
			count++
		}
	}
	return count, nil
}

// Associations

func (r *Repository) CreateAssociation(_ context.Context, assoc *ipam.VPCPrefixAssociation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.associations {
		if existing.VPCID == assoc.VPCID && existing.VPCPrefixCIDR == assoc.VPCPrefixCIDR {
			return ipam.ErrDuplicateAssociation
		}
	}
	r.associations[assoc.ID] = cloneAssociation(assoc)
	return nil
}

func (r *Repository) GetAssociation(_ context.Context, associationID string) (*ipam.VPCPrefixAssociation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.associations[associationID]
	if !ok {
		return nil, ipam.ErrAssociationNotFound
	}
	return cloneAssociation(a), nil
}

func (r *Repository) ListAssociationsByVPC(_ context.Context, vpcID string) ([]*ipam.VPCPrefixAssociation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.VPCPrefixAssociation, 0)
	for _, a := range r.associations {
		if a.VPCID == vpcID {
			out = append(out, cloneAssociation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) ListAssociationsByPrefix(_ context.Context, parentPrefixID string) ([]*ipam.VPCPrefixAssociation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ipam.VPCPrefixAssociation, 0)
	for _, a := range r.associations {
		if a.ParentPrefixID == parentPrefixID {
			out = append(out, cloneAssociation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) DeleteAssociation(_ context.Context, associationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.associations[associationID]; !ok {
		return ipam.ErrAssociationNotFound
	}
	delete(r.associations, associationID)
	return nil
}

// Idempotency

func (r *Repository) CreateIdempotencyRecord(_ context.Context, rec *ipam.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.idempotency[rec.RequestID]; exists {
		return ipam.ErrDuplicateRequestID
	}
	stored := *rec
	r.idempotency[rec.RequestID] = &stored
	return nil
}

func (r *Repository) GetIdempotencyRecord(_ context.Context, requestID string) (*ipam.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.idempotency[requestID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (r *Repository) CountIdempotencyRecords(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idempotency), nil
}

// Ensure interface compliance
var _ ipam.Repository = (*Repository)(nil)
