package wire

import "encoding/binary"

// Registered TLV type codes (spec §4.1).
const (
	TLVTernary        uint16 = 0x0001
	TLVOwlMetrics     uint16 = 0x0002
	TLVRoutingInfo    uint16 = 0x0003
	TLVNeighborList   uint16 = 0x0010
	TLVTopologyUpdate uint16 = 0x0011
	TLVKeepalive      uint16 = 0x0030
	TLVErrorInfo      uint16 = 0x0031
	TLVCapabilities   uint16 = 0x0032
)

// ExperimentalTypeMin is the start of the range reserved for experiments.
const ExperimentalTypeMin uint16 = 0xF000

// tlvHeaderSize is the 2-byte type + 2-byte length prefix of every TLV.
const tlvHeaderSize = 4

// TLV is a single type/length/value record.
type TLV struct {
	Type  uint16
	Value []byte
}

// DecodeStats records observations made while decoding a TLV region and
// is returned to the caller (cmd/packet-dump prints it); no metric reads it.
type DecodeStats struct {
	UnknownSkipped int
}

// EncodeTLVs packs TLVs tightly: each record is 2-byte type + 2-byte
// length + value, with no padding between records.
func EncodeTLVs(tlvs []TLV) ([]byte, error) {
	size := 0
	for _, t := range tlvs {
		size += tlvHeaderSize + len(t.Value)
	}

	buf := make([]byte, size)
	offset := 0
	for _, t := range tlvs {
		binary.BigEndian.PutUint16(buf[offset:offset+2], t.Type)
		binary.BigEndian.PutUint16(buf[offset+2:offset+4], uint16(len(t.Value)))
		offset += tlvHeaderSize
		copy(buf[offset:], t.Value)
		offset += len(t.Value)
	}
	return buf, nil
}

// DecodeTLVs walks a tightly-packed TLV region. Unknown type codes are
// skipped (and counted) unless strict is true, in which case they are a
// decode error. Truncated lengths are always an error.
func DecodeTLVs(data []byte, strict bool) ([]TLV, *DecodeStats, error) {
	var tlvs []TLV
	stats := &DecodeStats{}

	offset := 0
	for offset < len(data) {
		if offset+tlvHeaderSize > len(data) {
			return nil, nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "header past end of region"}
		}

		typ := binary.BigEndian.Uint16(data[offset : offset+2])
		length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += tlvHeaderSize

		if offset+length > len(data) {
			return nil, nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "value past end of region"}
		}

		value := data[offset : offset+length]
		offset += length

		if !isRegistered(typ) {
			if strict {
				return nil, nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "unknown TLV type in strict mode"}
			}
			stats.UnknownSkipped++
			continue
		}

		tlvs = append(tlvs, TLV{Type: typ, Value: append([]byte(nil), value...)})
	}

	return tlvs, stats, nil
}

func isRegistered(t uint16) bool {
	switch t {
	case TLVTernary, TLVOwlMetrics, TLVRoutingInfo, TLVNeighborList,
		TLVTopologyUpdate, TLVKeepalive, TLVErrorInfo, TLVCapabilities:
		return true
	default:
		return false
	}
}
