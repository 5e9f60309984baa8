// Package bgp encodes the OWL performance triple into the BGP community
// attributes the out-of-scope eBGP daemon collaborator advertises
// alongside a route (spec §6). The teacher's internal/bgp package only
// ever decoded communities off the wire, for display; DDARP needs the
// opposite direction, so the value formatting here is adapted from that
// decoder's "%d:%d" convention rather than copied wholesale.
package bgp

import "fmt"

// Well-known community ASNs carrying DDARP's OWL triple (spec §6).
const (
	CommunityASNLatency uint16 = 65000
	CommunityASNJitter  uint16 = 65001
	CommunityASNLoss    uint16 = 65002
)

// OwlCommunities is the clamped (latency, jitter, loss) triple encoded as
// standard BGP community values, ready for the seam's advertise envelope.
type OwlCommunities struct {
	Latency uint16
	Jitter  uint16
	Loss    uint16
}

// EncodeOwlCommunities clamps lat_ms/jit_ms/loss_ratio*100 into u16
// community values (value*10, saturated to [0, 65535]) per spec §6 and
// §9's resolution of the source's undocumented saturation behavior.
func EncodeOwlCommunities(latencyMs, jitterMs, lossRatio float64) OwlCommunities {
	return OwlCommunities{
		Latency: clampCommunity(latencyMs),
		Jitter:  clampCommunity(jitterMs),
		Loss:    clampCommunity(lossRatio * 100),
	}
}

// clampCommunity saturates value*10 to the valid community range.
func clampCommunity(value float64) uint16 {
	scaled := value * 10
	if scaled <= 0 {
		return 0
	}
	if scaled >= 65535 {
		return 65535
	}
	return uint16(scaled)
}

// Strings renders the triple in the "asn:value" form the teacher's
// decoder produced for standard communities, for structured log fields
// and the seam envelope's human-readable preview.
func (c OwlCommunities) Strings() []string {
	return []string{
		formatCommunity(CommunityASNLatency, c.Latency),
		formatCommunity(CommunityASNJitter, c.Jitter),
		formatCommunity(CommunityASNLoss, c.Loss),
	}
}

func formatCommunity(asn, value uint16) string {
	return fmt.Sprintf("%d:%d", asn, value)
}
