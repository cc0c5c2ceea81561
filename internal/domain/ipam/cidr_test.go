package ipam

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func mustParse(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", s, err)
	}
	return p
}

func TestParseCIDR_Canonicalizes(t *testing.T) {
	p := mustParse(t, "10.0.0.5/24")
	if p.String() != "10.0.0.0/24" {
		t.Errorf("Expected 10.0.0.0/24, got %s", p)
	}
}

func TestParseCIDR_Invalid(t *testing.T) {
	if _, err := ParseCIDR("not-a-cidr"); !errors.Is(err, ErrInvalidCIDR) {
		t.Errorf("Expected ErrInvalidCIDR, got %v", err)
	}
	if _, err := ParseCIDR("10.0.0.0"); !errors.Is(err, ErrInvalidCIDR) {
		t.Errorf("Expected ErrInvalidCIDR for missing mask, got %v", err)
	}
}

func TestStrictlyContains(t *testing.T) {
	parent := mustParse(t, "10.0.0.0/8")
	cases := []struct {
		child string
		want  bool
	}{
		{"10.1.0.0/16", true},
		{"10.0.0.0/8", false},  // equal is not strict
		{"11.0.0.0/16", false}, // outside
		{"0.0.0.0/0", false},   // shorter mask
		{"2001:db8::/32", false},
	}
	for _, tc := range cases {
		child := mustParse(t, tc.child)
		if got := StrictlyContains(parent, child); got != tc.want {
			t.Errorf("StrictlyContains(%s, %s) = %v, want %v", parent, child, got, tc.want)
		}
	}
}

func TestCanonicalCIDR_ExpandsIPv6(t *testing.T) {
	p := mustParse(t, "2001:db8::/32")
	want := "2001:0db8:0000:0000:0000:0000:0000:0000/32"
	if got := CanonicalCIDR(p); got != want {
		t.Errorf("CanonicalCIDR = %s, want %s", got, want)
	}
}

func TestDashCIDR(t *testing.T) {
	if got := DashCIDR(mustParse(t, "10.2.0.0/16")); got != "10-2-0-0-16" {
		t.Errorf("DashCIDR = %s, want 10-2-0-0-16", got)
	}
	if got := DashCIDR(mustParse(t, "2001:db8::/32")); got != "2001-0db8-0000-0000-0000-0000-0000-0000-32" {
		t.Errorf("DashCIDR v6 = %s", got)
	}
}

func TestSubnets_EnumeratesInOrder(t *testing.T) {
	iter, err := Subnets(mustParse(t, "10.0.0.0/22"), 24)
	if err != nil {
		t.Fatalf("Subnets: %v", err)
	}
	want := []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24", "10.0.3.0/24"}
	var got []string
	for {
		sub, ok := iter.Next()
		if !ok {
			break
		}
		got = append(got, sub.String())
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d subnets, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subnet[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSubnets_AddressSpaceEnd(t *testing.T) {
	// the last /24 of IPv4 must terminate instead of wrapping around
	iter, err := Subnets(mustParse(t, "255.255.255.0/24"), 25)
	if err != nil {
		t.Fatalf("Subnets: %v", err)
	}
	count := 0
	for {
		if _, ok := iter.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("Expected 2 subnets at address space end, got %d", count)
	}
}

func TestSubnets_InvalidMask(t *testing.T) {
	if _, err := Subnets(mustParse(t, "10.0.0.0/24"), 16); !errors.Is(err, ErrInvalidMaskLength) {
		t.Errorf("Expected ErrInvalidMaskLength for shorter mask, got %v", err)
	}
	if _, err := Subnets(mustParse(t, "10.0.0.0/24"), 33); !errors.Is(err, ErrInvalidMaskLength) {
		t.Errorf("Expected ErrInvalidMaskLength for /33, got %v", err)
	}
}

func TestSubnetIter_SkipPast(t *testing.T) {
	iter, err := Subnets(mustParse(t, "10.0.0.0/16"), 24)
	if err != nil {
		t.Fatalf("Subnets: %v", err)
	}
	first, ok := iter.Next()
	if !ok || first.String() != "10.0.0.0/24" {
		t.Fatalf("first = %v", first)
	}
	iter.SkipPast(mustParse(t, "10.0.0.0/17"))
	next, ok := iter.Next()
	if !ok || next.String() != "10.0.128.0/24" {
		t.Errorf("after SkipPast expected 10.0.128.0/24, got %v", next)
	}
}

func TestSubnets_IPv6(t *testing.T) {
	iter, err := Subnets(mustParse(t, "2001:db8::/62"), 64)
	if err != nil {
		t.Fatalf("Subnets: %v", err)
	}
	var got []string
	for {
		sub, ok := iter.Next()
		if !ok {
			break
		}
		got = append(got, sub.String())
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 subnets, got %d (%v)", len(got), got)
	}
	if got[1] != "2001:db8:0:1::/64" {
		t.Errorf("subnet[1] = %s", got[1])
	}
}

func TestSubnetEnumerationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every yielded subnet lies inside the parent", prop.ForAll(
		func(octet int, parentBits, delta int) bool {
			parent := netip.PrefixFrom(netip.AddrFrom4([4]byte{byte(octet), 0, 0, 0}), parentBits).Masked()
			iter, err := Subnets(parent, parentBits+delta)
			if err != nil {
				return false
			}
			count := 0
			for {
				sub, ok := iter.Next()
				if !ok {
					break
				}
				if !parent.Contains(sub.Addr()) || sub.Bits() != parentBits+delta {
					return false
				}
				count++
			}
			return count == 1<<delta
		},
		gen.IntRange(1, 254),
		gen.IntRange(8, 24),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}
