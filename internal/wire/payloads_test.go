package wire

import "testing"

func TestRoutingInfo_RoundTrip(t *testing.T) {
	ri := RoutingInfo{Dest: "node-c", NextHop: "node-b", Metric: 42}
	decoded, err := DecodeRoutingInfo(ri.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != ri {
		t.Fatalf("got %+v, want %+v", decoded, ri)
	}
}

func TestRoutingInfo_Truncated(t *testing.T) {
	_, err := DecodeRoutingInfo([]byte{0, 3, 'a'})
	if err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestOwlMetrics_WrongLength(t *testing.T) {
	_, err := DecodeOwlMetrics([]byte{1, 2, 3})
	assertErrKind(t, err, ErrTruncatedTlv)
}

func TestJSONTLV_RoundTrip(t *testing.T) {
	type payload struct {
		Neighbors []string `json:"neighbors"`
	}
	in := payload{Neighbors: []string{"a", "b"}}
	encoded, err := EncodeJSONTLV(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out payload
	if err := DecodeJSONTLV(encoded, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Neighbors) != 2 || out.Neighbors[0] != "a" {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestJSONTLV_BadUTF8(t *testing.T) {
	var out any
	err := DecodeJSONTLV([]byte{0xff, 0xfe, 0xfd}, &out)
	assertErrKind(t, err, ErrBadUtf8)
}

func TestJSONTLV_BadJSON(t *testing.T) {
	var out any
	err := DecodeJSONTLV([]byte(`{not json`), &out)
	assertErrKind(t, err, ErrBadJSON)
}
