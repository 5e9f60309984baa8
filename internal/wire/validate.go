package wire

import (
	"encoding/json"
	"unicode/utf8"
)

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// DecodeJSONTLV validates that value is UTF-8 and well-formed JSON, then
// unmarshals it into v, for JSON-valued TLVs. The gossip receiver decodes
// TOPOLOGY_UPDATE with json.Unmarshal directly rather than through it.
func DecodeJSONTLV(value []byte, v any) error {
	if !isValidUTF8(value) {
		return &DecodeError{Kind: ErrBadUtf8, Detail: "json TLV"}
	}
	if err := json.Unmarshal(value, v); err != nil {
		return &DecodeError{Kind: ErrBadJSON, Detail: err.Error()}
	}
	return nil
}

// EncodeJSONTLV marshals v to JSON for embedding as a TLV value.
func EncodeJSONTLV(v any) ([]byte, error) {
	return json.Marshal(v)
}
