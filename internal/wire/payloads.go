package wire

import (
	"encoding/binary"
	"fmt"
)

// OwlMetrics is the packed value of a TLVOwlMetrics TLV: latency_ns u64,
// jitter_ns u64, timestamp u32.
type OwlMetrics struct {
	LatencyNs uint64
	JitterNs  uint64
	Timestamp uint32
}

// Encode packs the OWL metrics payload.
func (m OwlMetrics) Encode() []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:8], m.LatencyNs)
	binary.BigEndian.PutUint64(buf[8:16], m.JitterNs)
	binary.BigEndian.PutUint32(buf[16:20], m.Timestamp)
	return buf
}

// DecodeOwlMetrics unpacks a TLVOwlMetrics value.
func DecodeOwlMetrics(value []byte) (OwlMetrics, error) {
	if len(value) != 20 {
		return OwlMetrics{}, &DecodeError{Kind: ErrTruncatedTlv, Detail: fmt.Sprintf("owl_metrics length %d, want 20", len(value))}
	}
	return OwlMetrics{
		LatencyNs: binary.BigEndian.Uint64(value[0:8]),
		JitterNs:  binary.BigEndian.Uint64(value[8:16]),
		Timestamp: binary.BigEndian.Uint32(value[16:20]),
	}, nil
}

// RoutingInfo is the packed value of a TLVRoutingInfo TLV: length-prefixed
// dest, length-prefixed next_hop, metric u32.
type RoutingInfo struct {
	Dest    string
	NextHop string
	Metric  uint32
}

// Encode packs the routing-info payload.
func (r RoutingInfo) Encode() []byte {
	buf := make([]byte, 0, 2+len(r.Dest)+2+len(r.NextHop)+4)
	buf = appendLPString(buf, r.Dest)
	buf = appendLPString(buf, r.NextHop)
	metricBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(metricBuf, r.Metric)
	return append(buf, metricBuf...)
}

// DecodeRoutingInfo unpacks a TLVRoutingInfo value.
func DecodeRoutingInfo(value []byte) (RoutingInfo, error) {
	dest, rest, err := readLPString(value)
	if err != nil {
		return RoutingInfo{}, err
	}
	nextHop, rest, err := readLPString(rest)
	if err != nil {
		return RoutingInfo{}, err
	}
	if len(rest) != 4 {
		return RoutingInfo{}, &DecodeError{Kind: ErrTruncatedTlv, Detail: "routing_info metric field"}
	}
	return RoutingInfo{
		Dest:    dest,
		NextHop: nextHop,
		Metric:  binary.BigEndian.Uint32(rest),
	}, nil
}

func appendLPString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func readLPString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "length-prefixed string header"}
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+n {
		return "", nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "length-prefixed string value"}
	}
	if !isValidUTF8(data[2 : 2+n]) {
		return "", nil, &DecodeError{Kind: ErrBadUtf8, Detail: "routing_info field"}
	}
	return string(data[2 : 2+n]), data[2+n:], nil
}
