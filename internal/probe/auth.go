package probe

import (
	"crypto/hmac"
	"crypto/sha256"
)

// macSize is the trailing HMAC-SHA256 tag length appended to every probe
// datagram (spec §4.2: "authenticated UDP probes").
const macSize = sha256.Size

// sign appends an HMAC-SHA256 tag over body, keyed by the shared secret
// configured for the peer being probed.
func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(body)
}

// verify splits a received datagram into its body and trailing tag,
// recomputing the HMAC under secret. Returns the body and whether the
// tag matched.
func verify(secret string, datagram []byte) (body []byte, ok bool) {
	if len(datagram) < macSize {
		return nil, false
	}
	split := len(datagram) - macSize
	body, tag := datagram[:split], datagram[split:]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	return body, hmac.Equal(expected, tag)
}
