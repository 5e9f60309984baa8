// Package wire implements the DDARP binary packet format: a fixed 20-byte
// header followed by a variable TLV payload.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Version is the only protocol version this codec understands.
const Version uint8 = 1

// HeaderSize is the fixed header length in bytes (v1).
const HeaderSize = 20

// Flag bits within the header's flags byte.
const (
	FlagRequest    uint8 = 1 << 0
	FlagResponse   uint8 = 1 << 1
	FlagError      uint8 = 1 << 2
	FlagCompressed uint8 = 1 << 3
	FlagEncrypted  uint8 = 1 << 4
	flagReservedMask uint8 = 0xE0 // bits 5-7
)

// MaxPacketSize bounds the inbound datagram buffer (spec §5 resource caps).
const MaxPacketSize = 8192

// Header is the fixed 20-byte DDARP packet header.
type Header struct {
	Version      uint8
	Flags        uint8
	HeaderLength uint16
	TunnelID     uint32
	Sequence     uint32
	Timestamp    uint32
	TLVLength    uint32
}

// Packet is a decoded DDARP packet: header plus ordered TLVs.
type Packet struct {
	Header Header
	TLVs   []TLV
}

// Encode serializes the packet to its wire representation. The TLV region
// is compressed with zstd first when FlagCompressed is set; TLVLength in
// the returned header reflects the (possibly compressed) on-wire length.
func Encode(p *Packet) ([]byte, error) {
	payload, err := EncodeTLVs(p.TLVs)
	if err != nil {
		return nil, err
	}

	if p.Header.Flags&FlagCompressed != 0 {
		payload = compress(payload)
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = Version
	buf[1] = p.Header.Flags
	binary.BigEndian.PutUint16(buf[2:4], HeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], p.Header.TunnelID)
	binary.BigEndian.PutUint32(buf[8:12], p.Header.Sequence)
	binary.BigEndian.PutUint32(buf[12:16], p.Header.Timestamp)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// DecodeOptions controls optional strictness of Decode.
type DecodeOptions struct {
	// Strict rejects packets containing unknown TLV types instead of
	// skipping them (spec §4.1 skip-unknown rule).
	Strict bool
}

// Decode parses a complete DDARP packet from raw bytes. One malformed
// packet never poisons subsequent packets: all failures are returned as
// *DecodeError values, never panics, on the caller's behalf.
func Decode(data []byte, opts DecodeOptions) (*Packet, *DecodeStats, error) {
	if len(data) > MaxPacketSize {
		return nil, nil, &DecodeError{Kind: ErrPacketTooLarge, Detail: fmt.Sprintf("%d bytes", len(data))}
	}
	if len(data) < HeaderSize {
		return nil, nil, &DecodeError{Kind: ErrMalformedHeader, Detail: "shorter than fixed header"}
	}

	version := data[0]
	if version != Version {
		return nil, nil, &DecodeError{Kind: ErrUnsupportedVersion, Detail: fmt.Sprintf("version %d", version)}
	}

	flags := data[1]
	if flags&flagReservedMask != 0 {
		return nil, nil, &DecodeError{Kind: ErrReservedFlagSet, Detail: fmt.Sprintf("flags 0x%02x", flags)}
	}

	headerLength := binary.BigEndian.Uint16(data[2:4])
	if headerLength != HeaderSize {
		return nil, nil, &DecodeError{Kind: ErrMalformedHeader, Detail: fmt.Sprintf("header_length %d", headerLength)}
	}

	tlvLength := binary.BigEndian.Uint32(data[16:20])
	total := int(headerLength) + int(tlvLength)
	if total > len(data) {
		return nil, nil, &DecodeError{Kind: ErrMalformedHeader, Detail: "tlv_length exceeds buffer"}
	}

	h := Header{
		Version:      version,
		Flags:        flags,
		HeaderLength: headerLength,
		TunnelID:     binary.BigEndian.Uint32(data[4:8]),
		Sequence:     binary.BigEndian.Uint32(data[8:12]),
		Timestamp:    binary.BigEndian.Uint32(data[12:16]),
		TLVLength:    tlvLength,
	}

	payload := data[headerLength:total]
	if h.Flags&FlagCompressed != 0 {
		decompressed, err := decompress(payload)
		if err != nil {
			return nil, nil, &DecodeError{Kind: ErrTruncatedTlv, Detail: "zstd: " + err.Error()}
		}
		payload = decompressed
	}

	tlvs, stats, err := DecodeTLVs(payload, opts.Strict)
	if err != nil {
		return nil, nil, err
	}

	return &Packet{Header: h, TLVs: tlvs}, stats, nil
}
