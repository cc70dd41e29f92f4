// Package token defines the extracted credential pair, the parser that
// pulls it out of intercepted youtubei request bodies, and the store
// that publishes it to readers.
package token

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Credential is the two-part authorization pair intercepted from a
// youtubei API request, stamped with the extraction time. Values are
// immutable; a newer extraction replaces the whole pair.
type Credential struct {
	Updated     int64  `json:"updated"`
	PoToken     string `json:"potoken"`
	VisitorData string `json:"visitor_data"`
}

// JSON serializes the credential in the stable wire format consumed by
// downstream clients.
func (c Credential) JSON() string {
	out, err := json.Marshal(c)
	if err != nil {
		// Credential is a flat struct of scalars; this cannot fail.
		return "{}"
	}
	return string(out)
}
