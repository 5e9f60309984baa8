// Command packet-dump decodes DDARP wire packets (spec §4.1) read from
// stdin or a file and prints their header and TLVs, the standalone
// decode-and-print role the teacher's cmd/debug-raw filled for BMP/BGP
// frames pulled off Kafka.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/ddarp-project/ddarpd/internal/wire"
)

func main() {
	strict := false
	path := ""
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--strict":
			strict = true
		case "--help", "-h":
			printUsage()
			return
		default:
			path = arg
		}
	}

	data, err := readInput(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
		os.Exit(1)
	}

	dumpPacket(data, strict)
}

func printUsage() {
	fmt.Println("Usage: packet-dump [--strict] [file]")
	fmt.Println()
	fmt.Println("Decodes a single DDARP wire packet from a file, or stdin when no file is given.")
	fmt.Println("  --strict   reject unknown TLV types instead of skipping them")
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func dumpPacket(data []byte, strict bool) {
	pkt, stats, err := wire.Decode(data, wire.DecodeOptions{Strict: strict})
	if err != nil {
		fmt.Printf("decode error: %v\n", err)
		if de, ok := err.(*wire.DecodeError); ok {
			fmt.Printf("  kind: %s\n", de.Kind)
		}
		return
	}

	h := pkt.Header
	fmt.Printf("=== DDARP packet (%d bytes) ===\n", len(data))
	fmt.Printf("  version:      %d\n", h.Version)
	fmt.Printf("  flags:        0x%02x %s\n", h.Flags, describeFlags(h.Flags))
	fmt.Printf("  header_len:   %d\n", h.HeaderLength)
	fmt.Printf("  tunnel_id:    0x%08x\n", h.TunnelID)
	fmt.Printf("  sequence:     %d\n", h.Sequence)
	fmt.Printf("  timestamp:    %d\n", h.Timestamp)
	fmt.Printf("  tlv_length:   %d\n", h.TLVLength)
	if stats != nil && stats.UnknownSkipped > 0 {
		fmt.Printf("  unknown TLVs skipped: %d\n", stats.UnknownSkipped)
	}

	fmt.Printf("  TLVs: %d\n", len(pkt.TLVs))
	for i, t := range pkt.TLVs {
		fmt.Printf("  --- TLV %d ---\n", i)
		fmt.Printf("    type:  0x%04x (%s)\n", t.Type, tlvName(t.Type))
		fmt.Printf("    len:   %d\n", len(t.Value))
		describeValue(t)
	}
}

func describeFlags(flags uint8) string {
	var parts []string
	if flags&wire.FlagRequest != 0 {
		parts = append(parts, "REQUEST")
	}
	if flags&wire.FlagResponse != 0 {
		parts = append(parts, "RESPONSE")
	}
	if flags&wire.FlagError != 0 {
		parts = append(parts, "ERROR")
	}
	if flags&wire.FlagCompressed != 0 {
		parts = append(parts, "COMPRESSED")
	}
	if flags&wire.FlagEncrypted != 0 {
		parts = append(parts, "ENCRYPTED")
	}
	if len(parts) == 0 {
		return "(none)"
	}
	out := "("
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += p
	}
	return out + ")"
}

func tlvName(t uint16) string {
	switch t {
	case wire.TLVTernary:
		return "T3_TERNARY"
	case wire.TLVOwlMetrics:
		return "OWL_METRICS"
	case wire.TLVRoutingInfo:
		return "ROUTING_INFO"
	case wire.TLVNeighborList:
		return "NEIGHBOR_LIST"
	case wire.TLVTopologyUpdate:
		return "TOPOLOGY_UPDATE"
	case wire.TLVKeepalive:
		return "KEEPALIVE"
	case wire.TLVErrorInfo:
		return "ERROR_INFO"
	case wire.TLVCapabilities:
		return "CAPABILITIES"
	default:
		if t >= wire.ExperimentalTypeMin {
			return "experimental"
		}
		return "unknown"
	}
}

func describeValue(t wire.TLV) {
	switch t.Type {
	case wire.TLVOwlMetrics:
		m, err := wire.DecodeOwlMetrics(t.Value)
		if err != nil {
			fmt.Printf("    value: decode error: %v\n", err)
			return
		}
		fmt.Printf("    value: latency_ns=%d jitter_ns=%d timestamp=%d\n", m.LatencyNs, m.JitterNs, m.Timestamp)
	case wire.TLVRoutingInfo:
		ri, err := wire.DecodeRoutingInfo(t.Value)
		if err != nil {
			fmt.Printf("    value: decode error: %v\n", err)
			return
		}
		fmt.Printf("    value: dest=%q next_hop=%q metric=%d\n", ri.Dest, ri.NextHop, ri.Metric)
	case wire.TLVKeepalive:
		fmt.Printf("    value: (empty)\n")
	case wire.TLVTernary, wire.TLVNeighborList, wire.TLVTopologyUpdate, wire.TLVCapabilities:
		fmt.Printf("    value: %s\n", string(t.Value))
	case wire.TLVErrorInfo:
		fmt.Printf("    value: %s\n", string(t.Value))
	default:
		fmt.Printf("    value (hex): %s\n", hex.EncodeToString(t.Value))
	}
}
