package prefix

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"cloudipam/internal/adapters/db/memory"
	"cloudipam/internal/domain/ipam"
)

func mustCIDR(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := ipam.ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", s, err)
	}
	return p
}

func newTestService() *Service {
	return NewService(memory.NewRepository(), "")
}

func createVRF(t *testing.T, s *Service, id string) *ipam.VRF {
	t.Helper()
	vrf, err := s.CreateVRF(context.Background(), &ipam.VRFCreateRequest{VRFID: id})
	if err != nil {
		t.Fatalf("CreateVRF(%s): %v", id, err)
	}
	return vrf
}

func createPrefix(t *testing.T, s *Service, vrfID, cidr string) *ipam.Prefix {
	t.Helper()
	p, err := s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{VRFID: vrfID, CIDR: cidr})
	if err != nil {
		t.Fatalf("CreatePrefix(%s, %s): %v", vrfID, cidr, err)
	}
	return p
}

func TestCreatePrefix_ResolvesParentByLPM(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")

	root := createPrefix(t, s, "prod", "10.0.0.0/8")
	mid := createPrefix(t, s, "prod", "10.1.0.0/16")
	leaf := createPrefix(t, s, "prod", "10.1.2.0/24")

	if root.ParentPrefixID != "" || root.IndentationLevel != 0 {
		t.Errorf("root should have no parent, got %q level %d", root.ParentPrefixID, root.IndentationLevel)
	}
	if mid.ParentPrefixID != root.ID {
		t.Errorf("mid parent = %q, want %q", mid.ParentPrefixID, root.ID)
	}
	if leaf.ParentPrefixID != mid.ID || leaf.IndentationLevel != 2 {
		t.Errorf("leaf parent = %q level %d", leaf.ParentPrefixID, leaf.IndentationLevel)
	}
	if leaf.ID != "manual-prod-10-1-2-0-24" {
		t.Errorf("leaf id = %s", leaf.ID)
	}
}

func TestCreatePrefix_ReparentsCoveredSiblings(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")

	root := createPrefix(t, s, "prod", "10.0.0.0/8")
	leaf := createPrefix(t, s, "prod", "10.1.2.0/24")
	if leaf.ParentPrefixID != root.ID {
		t.Fatalf("leaf initially under root")
	}

	// inserting /16 between root and leaf adopts the leaf
	mid := createPrefix(t, s, "prod", "10.1.0.0/16")

	got, err := s.GetPrefix(context.Background(), leaf.ID)
	if err != nil {
		t.Fatalf("GetPrefix: %v", err)
	}
	if got.ParentPrefixID != mid.ID {
		t.Errorf("leaf parent after insert = %q, want %q", got.ParentPrefixID, mid.ID)
	}
	if got.IndentationLevel != 2 {
		t.Errorf("leaf level after insert = %d, want 2", got.IndentationLevel)
	}
}

func TestCreatePrefix_DuplicateRejected(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	createPrefix(t, s, "prod", "10.0.0.0/8")
	createPrefix(t, s, "prod", "10.1.0.0/16")

	_, err := s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{VRFID: "prod", CIDR: "10.1.0.0/16"})
	if !errors.Is(err, ipam.ErrDuplicateCIDR) {
		t.Errorf("duplicate: expected ErrDuplicateCIDR, got %v", err)
	}
	// masked form of the same network is still a duplicate
	_, err = s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{VRFID: "prod", CIDR: "10.1.0.5/16"})
	if !errors.Is(err, ipam.ErrDuplicateCIDR) {
		t.Errorf("unmasked duplicate: expected ErrDuplicateCIDR, got %v", err)
	}
}

func TestCreatePrefix_SiblingOverlapRejected(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	root := createPrefix(t, s, "prod", "10.0.0.0/8")
	createPrefix(t, s, "prod", "10.1.0.0/16")

	// explicit parent one level too high: the /24 collides with the /16
	// that would otherwise contain it
	_, err := s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{
		VRFID:          "prod",
		CIDR:           "10.1.2.0/24",
		ParentPrefixID: root.ID,
	})
	if !errors.Is(err, ipam.ErrSiblingOverlap) {
		t.Errorf("expected ErrSiblingOverlap, got %v", err)
	}
}

func TestCreatePrefix_SameCIDRDifferentVRFs(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	createVRF(t, s, "staging")

	a := createPrefix(t, s, "prod", "10.0.0.0/16")
	b := createPrefix(t, s, "staging", "10.0.0.0/16")
	if a.ID == b.ID {
		t.Errorf("ids should differ across VRFs: %s vs %s", a.ID, b.ID)
	}
}

func TestCreatePrefix_ExplicitParentValidation(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	createVRF(t, s, "other")
	parent := createPrefix(t, s, "prod", "10.0.0.0/8")

	_, err := s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{
		VRFID: "prod", CIDR: "192.168.0.0/24", ParentPrefixID: parent.ID,
	})
	if !errors.Is(err, ipam.ErrParentMismatch) {
		t.Errorf("outside parent: expected ErrParentMismatch, got %v", err)
	}

	_, err = s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{
		VRFID: "other", CIDR: "10.1.0.0/16", ParentPrefixID: parent.ID,
	})
	if !errors.Is(err, ipam.ErrParentMismatch) {
		t.Errorf("cross-VRF parent: expected ErrParentMismatch, got %v", err)
	}

	_, err = s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{
		VRFID: "prod", CIDR: "2001:db8::/64", ParentPrefixID: parent.ID,
	})
	if !errors.Is(err, ipam.ErrFamilyMismatch) {
		t.Errorf("family mismatch: expected ErrFamilyMismatch, got %v", err)
	}
}

func TestVPCChildrenOnlyPolicy(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	_, err := s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{
		VRFID: "prod", CIDR: "10.0.0.0/16", VPCChildrenType: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = s.CreatePrefix(context.Background(), &ipam.PrefixCreateRequest{VRFID: "prod", CIDR: "10.0.1.0/24"})
	if !errors.Is(err, ipam.ErrVPCChildrenOnly) {
		t.Errorf("expected ErrVPCChildrenOnly, got %v", err)
	}

	capability, err := s.CanCreateChild(context.Background(), "manual-prod-10-0-0-0-16")
	if err != nil {
		t.Fatalf("CanCreateChild: %v", err)
	}
	if capability.Allowed {
		t.Error("CanCreateChild should be false for vpc-children-only prefix")
	}
}

func TestCanCreateChild_RefusesVPCSourced(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	createVRF(t, s, "prod")

	p := &ipam.Prefix{
		ID:     "vpc-1-subnet-10-2-0-0-24",
		VRFID:  "prod",
		CIDR:   mustCIDR(t, "10.2.0.0/24"),
		Tags:   ipam.Tags{},
		Source: ipam.SourceVPC,
		VPCID:  "vpc-1",
	}
	if err := s.InsertDiscovered(ctx, p); err != nil {
		t.Fatalf("InsertDiscovered: %v", err)
	}

	capability, err := s.CanCreateChild(ctx, p.ID)
	if err != nil {
		t.Fatalf("CanCreateChild: %v", err)
	}
	if capability.Allowed {
		t.Error("CanCreateChild should be false for a cloud-sourced subnet")
	}
	if capability.Reason == "" {
		t.Error("refusal should carry a reason")
	}
}

func TestDeletePrefix_Policies(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	root := createPrefix(t, s, "prod", "10.0.0.0/8")
	leaf := createPrefix(t, s, "prod", "10.1.0.0/16")

	if err := s.DeletePrefix(context.Background(), root.ID); !errors.Is(err, ipam.ErrPrefixHasChildren) {
		t.Errorf("expected ErrPrefixHasChildren, got %v", err)
	}
	if err := s.DeletePrefix(context.Background(), leaf.ID); err != nil {
		t.Errorf("leaf delete failed: %v", err)
	}
	if err := s.DeletePrefix(context.Background(), root.ID); err != nil {
		t.Errorf("root delete after leaf failed: %v", err)
	}
}

func TestUpdatePrefix_VPCSourcedImmutable(t *testing.T) {
	s := newTestService()
	createVRF(t, s, "prod")
	p := &ipam.Prefix{
		ID:     "vpc-1-subnet-10-0-1-0-24",
		VRFID:  "prod",
		CIDR:   mustCIDR(t, "10.0.1.0/24"),
		Tags:   ipam.Tags{},
		Source: ipam.SourceVPC,
		VPCID:  "vpc-1",
	}
	if err := s.InsertDiscovered(context.Background(), p); err != nil {
		t.Fatalf("InsertDiscovered: %v", err)
	}

	_, err := s.UpdatePrefix(context.Background(), p.ID, &ipam.PrefixUpdateRequest{Tags: ipam.Tags{"x": "y"}})
	if !errors.Is(err, ipam.ErrVPCSourcedImmutable) {
		t.Errorf("update: expected ErrVPCSourcedImmutable, got %v", err)
	}
	if err := s.DeletePrefix(context.Background(), p.ID); !errors.Is(err, ipam.ErrVPCSourcedImmutable) {
		t.Errorf("delete: expected ErrVPCSourcedImmutable, got %v", err)
	}
}

func TestVRFLifecycle(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	createVRF(t, s, "prod")
	if _, err := s.CreateVRF(ctx, &ipam.VRFCreateRequest{VRFID: "prod"}); !errors.Is(err, ipam.ErrDuplicateVRF) {
		t.Errorf("expected ErrDuplicateVRF, got %v", err)
	}

	if err := s.DeleteVRF(ctx, ipam.PublicVRFID); !errors.Is(err, ipam.ErrVRFReserved) {
		t.Errorf("expected ErrVRFReserved, got %v", err)
	}

	createPrefix(t, s, "prod", "10.0.0.0/8")
	if err := s.DeleteVRF(ctx, "prod"); !errors.Is(err, ipam.ErrVRFReferenced) {
		t.Errorf("expected ErrVRFReferenced, got %v", err)
	}
}

func TestDefaultVRF_SingleHolder(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.CreateVRF(ctx, &ipam.VRFCreateRequest{VRFID: "a", IsDefault: true}); err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, err := s.CreateVRF(ctx, &ipam.VRFCreateRequest{VRFID: "b", IsDefault: true}); !errors.Is(err, ipam.ErrDefaultVRFExists) {
		t.Errorf("expected ErrDefaultVRFExists, got %v", err)
	}

	vrf, err := s.DefaultVRF(ctx)
	if err != nil || vrf.ID != "a" {
		t.Errorf("DefaultVRF = %v, %v", vrf, err)
	}
}

func TestAssociationPolicy(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	createVRF(t, s, "prod")
	parent := createPrefix(t, s, "prod", "10.0.0.0/8")

	vpc, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-abc",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}

	assoc, err := s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
		VPCID: vpc.ID, VPCPrefixCIDR: "10.1.0.0/16", ParentPrefixID: parent.ID,
	})
	if err != nil {
		t.Fatalf("CreateAssociation: %v", err)
	}
	if !assoc.Routable {
		t.Error("association should inherit parent routability")
	}

	got, err := s.GetPrefix(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetPrefix: %v", err)
	}
	if got.Tags.GetString(ipam.TagAssociatedVPC) != "vpc-abc" {
		t.Errorf("parent associated_vpc tag = %v, want provider vpc id", got.Tags[ipam.TagAssociatedVPC])
	}

	// routable parent admits only one association
	vpc2, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-def",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}
	_, err = s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
		VPCID: vpc2.ID, VPCPrefixCIDR: "10.2.0.0/16", ParentPrefixID: parent.ID,
	})
	if !errors.Is(err, ipam.ErrAssociationPolicy) {
		t.Errorf("expected ErrAssociationPolicy, got %v", err)
	}

	// deleting the association clears the tag
	if err := s.DeleteAssociation(ctx, assoc.ID); err != nil {
		t.Fatalf("DeleteAssociation: %v", err)
	}
	got, _ = s.GetPrefix(ctx, parent.ID)
	if _, ok := got.Tags[ipam.TagAssociatedVPC]; ok {
		t.Error("associated_vpc tag should be cleared")
	}
}

func TestNonRoutableParentAdmitsManyAssociations(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	createVRF(t, s, "shared")
	routable := false
	parent, err := s.CreatePrefix(ctx, &ipam.PrefixCreateRequest{
		VRFID: "shared", CIDR: "172.16.0.0/12", Routable: &routable,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	for i, vpcID := range []string{"vpc-1", "vpc-2"} {
		vpc, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
			Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: vpcID,
		})
		if err != nil {
			t.Fatalf("CreateVPC: %v", err)
		}
		cidr := []string{"172.16.0.0/16", "172.17.0.0/16"}[i]
		if _, err := s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
			VPCID: vpc.ID, VPCPrefixCIDR: cidr, ParentPrefixID: parent.ID,
		}); err != nil {
			t.Errorf("association %d failed: %v", i, err)
		}
	}
}

func TestTreeOrdering(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	createVRF(t, s, "prod")
	createPrefix(t, s, "prod", "10.0.0.0/8")
	createPrefix(t, s, "prod", "10.2.0.0/16")
	createPrefix(t, s, "prod", "10.1.0.0/16")
	createPrefix(t, s, "prod", "192.168.0.0/16")
	createPrefix(t, s, "prod", "10.1.5.0/24")

	tree, err := s.Tree(ctx, "prod")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	want := []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.5.0/24", "10.2.0.0/16", "192.168.0.0/16"}
	if len(tree) != len(want) {
		t.Fatalf("tree size = %d, want %d", len(tree), len(want))
	}
	wantLevels := []int{0, 1, 2, 1, 0}
	for i, p := range tree {
		if p.CIDR.String() != want[i] {
			t.Errorf("tree[%d] = %s, want %s", i, p.CIDR, want[i])
		}
		if p.IndentationLevel != wantLevels[i] {
			t.Errorf("tree[%d] level = %d, want %d", i, p.IndentationLevel, wantLevels[i])
		}
	}
}

func TestCreatePublicIP(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	// a containing public-vrf prefix must not become the parent
	createPrefix(t, s, ipam.PublicVRFID, "54.12.8.0/24")

	p, err := s.CreatePublicIP(ctx, &ipam.PublicIPCreateRequest{CIDR: "54.12.8.3/32"})
	if err != nil {
		t.Fatalf("CreatePublicIP: %v", err)
	}
	if p.VRFID != ipam.PublicVRFID || p.ID != "public-ip-54-12-8-3-32" || p.Source != ipam.SourceManual {
		t.Errorf("standalone public ip = %+v", p)
	}
	if p.ParentPrefixID != "" || p.IndentationLevel != 0 {
		t.Errorf("public ip should root without a parent, got %q level %d", p.ParentPrefixID, p.IndentationLevel)
	}
	if !p.Routable {
		t.Error("public ip should be routable")
	}

	vpc, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-abc",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}
	attached, err := s.CreatePublicIP(ctx, &ipam.PublicIPCreateRequest{CIDR: "54.12.8.4/32", VPCID: vpc.ID})
	if err != nil {
		t.Fatalf("CreatePublicIP attached: %v", err)
	}
	if attached.Source != ipam.SourceVPC || attached.VPCID != vpc.ID {
		t.Errorf("attached public ip = %+v", attached)
	}
	if !attached.VPCChildrenType {
		t.Error("vpc-attached public ip should carry the vpc-children flag")
	}
	if attached.ParentPrefixID != "" {
		t.Errorf("attached public ip parent = %q, want none", attached.ParentPrefixID)
	}

	_, err = s.CreatePublicIP(ctx, &ipam.PublicIPCreateRequest{CIDR: "54.12.8.3/32"})
	if !errors.Is(err, ipam.ErrDuplicateCIDR) {
		t.Errorf("duplicate public ip: expected ErrDuplicateCIDR, got %v", err)
	}
}

func TestCreateAssociation_ResolvesParentByCIDR(t *testing.T) {
	s := NewService(memory.NewRepository(), "prod")
	ctx := context.Background()
	createVRF(t, s, "prod")
	parent := createPrefix(t, s, "prod", "10.1.0.0/16")

	vpc, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-abc",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}

	// no parent_prefix_id: the configured default VRF plus the CIDR find it
	assoc, err := s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
		VPCID: vpc.ID, VPCPrefixCIDR: "10.1.0.0/16",
	})
	if err != nil {
		t.Fatalf("CreateAssociation: %v", err)
	}
	if assoc.ParentPrefixID != parent.ID {
		t.Errorf("Expected parent %s, got %s", parent.ID, assoc.ParentPrefixID)
	}
}

func TestCreateAssociation_FallsBackToDefaultVRF(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	if _, err := s.CreateVRF(ctx, &ipam.VRFCreateRequest{VRFID: "prod", IsDefault: true}); err != nil {
		t.Fatalf("CreateVRF: %v", err)
	}
	parent := createPrefix(t, s, "prod", "10.1.0.0/16")

	vpc, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-abc",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}

	assoc, err := s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
		VPCID: vpc.ID, VPCPrefixCIDR: "10.1.0.0/16",
	})
	if err != nil {
		t.Fatalf("CreateAssociation: %v", err)
	}
	if assoc.ParentPrefixID != parent.ID {
		t.Errorf("Expected parent %s, got %s", parent.ID, assoc.ParentPrefixID)
	}

	// explicit vrf_id wins over the default
	vpc2, err := s.CreateVPC(ctx, &ipam.VPCCreateRequest{
		Provider: ipam.ProviderAWS, ProviderAccountID: "123456789012", ProviderVPCID: "vpc-def",
	})
	if err != nil {
		t.Fatalf("CreateVPC: %v", err)
	}
	if _, err := s.CreateAssociation(ctx, &ipam.AssociationCreateRequest{
		VPCID: vpc2.ID, VPCPrefixCIDR: "10.1.0.0/16", VRFID: "missing",
	}); !errors.Is(err, ipam.ErrPrefixNotFound) {
		t.Errorf("expected ErrPrefixNotFound, got %v", err)
	}
}

func TestDeleteVRF_RefusesDefault(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	if _, err := s.CreateVRF(ctx, &ipam.VRFCreateRequest{VRFID: "prod", IsDefault: true}); err != nil {
		t.Fatalf("CreateVRF: %v", err)
	}
	if err := s.DeleteVRF(ctx, "prod"); !errors.Is(err, ipam.ErrVRFReserved) {
		t.Errorf("expected ErrVRFReserved, got %v", err)
	}
}
