package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	owl := OwlMetrics{LatencyNs: 1_500_000, JitterNs: 50_000, Timestamp: 0x65000000}
	p := &Packet{
		Header: Header{
			Flags:     FlagRequest,
			TunnelID:  0x000003E9,
			Sequence:  1,
			Timestamp: 0x65000000,
		},
		TLVs: []TLV{
			{Type: TLVOwlMetrics, Value: owl.Encode()},
		},
	}

	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// spec S5: total packet length = 20 + 4 + 20 = 44 bytes.
	if len(encoded) != 44 {
		t.Fatalf("expected 44 bytes, got %d", len(encoded))
	}

	decoded, stats, err := Decode(encoded, DecodeOptions{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.UnknownSkipped != 0 {
		t.Fatalf("expected 0 unknown TLVs, got %d", stats.UnknownSkipped)
	}

	if decoded.Header.Version != Version {
		t.Errorf("version mismatch: %d", decoded.Header.Version)
	}
	if decoded.Header.Flags != FlagRequest {
		t.Errorf("flags mismatch: 0x%x", decoded.Header.Flags)
	}
	if decoded.Header.TunnelID != 0x000003E9 {
		t.Errorf("tunnel_id mismatch: 0x%x", decoded.Header.TunnelID)
	}
	if decoded.Header.Sequence != 1 {
		t.Errorf("sequence mismatch: %d", decoded.Header.Sequence)
	}
	if len(decoded.TLVs) != 1 {
		t.Fatalf("expected 1 TLV, got %d", len(decoded.TLVs))
	}

	gotOwl, err := DecodeOwlMetrics(decoded.TLVs[0].Value)
	if err != nil {
		t.Fatalf("decode owl metrics: %v", err)
	}
	if gotOwl != owl {
		t.Errorf("owl metrics mismatch: got %+v, want %+v", gotOwl, owl)
	}

	// Re-encoding the decoded packet must reproduce the original bytes
	// (spec invariant 1: encode(decode(P)) == P for well-formed P).
	reEncoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(reEncoded, encoded) {
		t.Errorf("round trip mismatch:\n got  %x\n want %x", reEncoded, encoded)
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 2
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrUnsupportedVersion)
}

func TestDecode_MalformedHeaderLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = Version
	buf[2] = 0
	buf[3] = 19 // header_length != 20
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrMalformedHeader)
}

func TestDecode_ReservedFlagSet(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = Version
	buf[1] = 0x80 // bit 7 reserved
	buf[2] = 0
	buf[3] = HeaderSize
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrReservedFlagSet)
}

func TestDecode_TooShortForHeader(t *testing.T) {
	buf := make([]byte, 10)
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrMalformedHeader)
}

func TestDecode_TLVLengthPastEnd(t *testing.T) {
	p := &Packet{TLVs: []TLV{{Type: TLVKeepalive}}}
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Claim a TLV region larger than what actually follows.
	encoded[19] = 100
	_, _, err = Decode(encoded, DecodeOptions{})
	assertErrKind(t, err, ErrMalformedHeader)
}

func TestDecode_PacketTooLarge(t *testing.T) {
	buf := make([]byte, MaxPacketSize+1)
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrPacketTooLarge)
}

func TestDecode_SkipUnknownTLV(t *testing.T) {
	// spec S6: [(0x0001, jsonA), (0xABCD, "xx"), (0x0030, empty)] decodes
	// to [(0x0001, jsonA), (0x0030, empty)] with unknown-skip count 1.
	jsonA := []byte(`{"a":1}`)
	p := &Packet{
		TLVs: []TLV{
			{Type: TLVTernary, Value: jsonA},
			{Type: 0xABCD, Value: []byte("xx")},
			{Type: TLVKeepalive, Value: nil},
		},
	}
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, stats, err := Decode(encoded, DecodeOptions{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.UnknownSkipped != 1 {
		t.Fatalf("expected 1 unknown TLV skipped, got %d", stats.UnknownSkipped)
	}
	if len(decoded.TLVs) != 2 {
		t.Fatalf("expected 2 known TLVs, got %d", len(decoded.TLVs))
	}
	if decoded.TLVs[0].Type != TLVTernary || !bytes.Equal(decoded.TLVs[0].Value, jsonA) {
		t.Errorf("unexpected first TLV: %+v", decoded.TLVs[0])
	}
	if decoded.TLVs[1].Type != TLVKeepalive {
		t.Errorf("unexpected second TLV: %+v", decoded.TLVs[1])
	}

	// Re-encoding [K] must not contain the unknown TLV U.
	reEncoded, err := EncodeTLVs(decoded.TLVs)
	if err != nil {
		t.Fatalf("re-encode tlvs: %v", err)
	}
	if bytes.Contains(reEncoded, []byte("xx")) {
		t.Errorf("re-encoded TLVs unexpectedly contain the unknown TLV's value")
	}
}

func TestDecode_StrictModeRejectsUnknown(t *testing.T) {
	p := &Packet{TLVs: []TLV{{Type: 0xABCD, Value: []byte("xx")}}}
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, err = Decode(encoded, DecodeOptions{Strict: true})
	if err == nil {
		t.Fatal("expected strict mode to reject unknown TLV")
	}
}

func TestDecode_TruncatedTlvValue(t *testing.T) {
	// TLV header declares a 5-byte value but only 1 byte follows within
	// the tlv_length-bounded region; the outer header check passes
	// because tlv_length itself matches the buffer.
	buf := make([]byte, HeaderSize+5)
	buf[0] = Version
	buf[3] = HeaderSize
	buf[19] = 5 // tlv_length = 5
	// TLV: type=0x0000, length=5, but only 1 byte of value present.
	buf[HeaderSize+2] = 0
	buf[HeaderSize+3] = 5
	_, _, err := Decode(buf, DecodeOptions{})
	assertErrKind(t, err, ErrTruncatedTlv)
}

func TestEncodeDecode_Compressed(t *testing.T) {
	neighbors := []byte(`["a","b","c","d","e","f"]`)
	p := &Packet{
		Header: Header{Flags: FlagCompressed},
		TLVs:   []TLV{{Type: TLVNeighborList, Value: neighbors}},
	}
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, _, err := Decode(encoded, DecodeOptions{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.TLVs) != 1 || !bytes.Equal(decoded.TLVs[0].Value, neighbors) {
		t.Fatalf("compressed round trip mismatch: %+v", decoded.TLVs)
	}
}

func assertErrKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error kind %v, got nil", want)
	}
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
	if de.Kind != want {
		t.Fatalf("expected error kind %v, got %v (%v)", want, de.Kind, err)
	}
}
