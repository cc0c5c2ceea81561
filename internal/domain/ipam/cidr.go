package ipam

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"
	"strings"
)

// ParseCIDR parses s as an IPv4 or IPv6 network. The result is canonicalized
// to its masked form, so "10.0.0.5/24" parses to 10.0.0.0/24.
func ParseCIDR(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidCIDR, s)
	}
	return p.Masked(), nil
}

// SameFamily reports whether both networks are the same IP version.
func SameFamily(a, b netip.Prefix) bool {
	return a.Addr().Is4() == b.Addr().Is4()
}

// StrictlyContains reports whether child is a proper subnet of parent: same
// address family, longer mask, and address range inside the parent.
func StrictlyContains(parent, child netip.Prefix) bool {
	if !SameFamily(parent, child) {
		return false
	}
	return child.Bits() > parent.Bits() && parent.Contains(child.Addr())
}

// Overlaps reports whether the two networks share any addresses.
// Cross-family networks never overlap.
func Overlaps(a, b netip.Prefix) bool {
	return SameFamily(a, b) && a.Overlaps(b)
}

// CanonicalCIDR is the identifier form of a network: dotted quad for IPv4,
// fully expanded (no "::" compression) for IPv6.
func CanonicalCIDR(p netip.Prefix) string {
	addr := p.Addr()
	if addr.Is4() {
		return fmt.Sprintf("%s/%d", addr, p.Bits())
	}
	return fmt.Sprintf("%s/%d", addr.StringExpanded(), p.Bits())
}

var cidrDasher = strings.NewReplacer("/", "-", ".", "-", ":", "-")

// DashCIDR renders the canonical CIDR with "/", "." and ":" replaced by "-",
// the form used inside prefix identifiers.
func DashCIDR(p netip.Prefix) string {
	return cidrDasher.Replace(CanonicalCIDR(p))
}

// SubnetIter lazily yields the subnets of a fixed mask length inside a parent
// network, in address order. Laziness matters for IPv6 parents, where the
// full subnet set is far too large to materialize.
type SubnetIter struct {
	parent netip.Prefix
	bits   int
	cur    netip.Addr
	done   bool
}

// Subnets returns an iterator over the /bits subnets of parent.
func Subnets(parent netip.Prefix, bits int) (*SubnetIter, error) {
	parent = parent.Masked()
	if bits < parent.Bits() || bits > parent.Addr().BitLen() {
		return nil, fmt.Errorf("%w: /%d inside %s", ErrInvalidMaskLength, bits, parent)
	}
	return &SubnetIter{parent: parent, bits: bits, cur: parent.Addr()}, nil
}

// Next returns the next subnet, or false when the parent is exhausted.
func (it *SubnetIter) Next() (netip.Prefix, bool) {
	if it.done || !it.parent.Contains(it.cur) {
		it.done = true
		return netip.Prefix{}, false
	}
	sub := netip.PrefixFrom(it.cur, it.bits)
	next, ok := addStride(it.cur, it.bits)
	if !ok {
		it.done = true
	} else {
		it.cur = next
	}
	return sub, true
}

// SkipPast moves the cursor past the given block, so the next subnet yielded
// starts after it. Lets scans jump over a large occupied child instead of
// walking every candidate inside it.
func (it *SubnetIter) SkipPast(p netip.Prefix) {
	p = p.Masked()
	next, ok := addStride(p.Addr(), p.Bits())
	if !ok {
		it.done = true
		return
	}
	if it.cur.Less(next) {
		it.cur = next
	}
}

// addStride advances addr by the size of one /bits block, reporting overflow.
func addStride(addr netip.Addr, bits int) (netip.Addr, bool) {
	if bits == 0 {
		// a /0 block covers the whole address space
		return netip.Addr{}, false
	}
	if addr.Is4() {
		b := addr.As4()
		v := uint64(binary.BigEndian.Uint32(b[:])) + 1<<(32-bits)
		if v > math.MaxUint32 {
			return netip.Addr{}, false
		}
		binary.BigEndian.PutUint32(b[:], uint32(v))
		return netip.AddrFrom4(b), true
	}
	b := addr.As16()
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	host := 128 - bits
	if host >= 64 {
		sum := hi + 1<<(host-64)
		if sum < hi {
			return netip.Addr{}, false
		}
		hi = sum
	} else {
		sum := lo + 1<<host
		if sum < lo {
			hi++
			if hi == 0 {
				return netip.Addr{}, false
			}
		}
		lo = sum
	}
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return netip.AddrFrom16(b), true
}
