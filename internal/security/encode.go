package security

import "encoding/base64"

var binEncoding = base64.RawURLEncoding

func EncodeBinary(data []byte) string {
	return binEncoding.EncodeToString(data)
}

func DecodeBinary(s string) ([]byte, error) {
	return binEncoding.DecodeString(s)
}
