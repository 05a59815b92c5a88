// Package avap understands the signed package envelope the definition engine
// wraps around every command's code:
//
//	[ "AVAP" | version uint16 BE | payload size uint32 BE ][ HMAC-SHA256 ][ payload ]
//
// The signature covers header and payload.
package avap

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Magic opens every package.
const Magic = "AVAP"

// Version is the envelope version the engine currently emits.
const Version = 1

const (
	headerSize    = 10
	signatureSize = sha256.Size
)

// Package is a decoded envelope.
type Package struct {
	Version   uint16
	Signature []byte
	Payload   []byte
}

// Pack wraps payload into a signed envelope.
func Pack(payload, key []byte) []byte {
	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.BigEndian.PutUint16(header[4:], Version)
	binary.BigEndian.PutUint32(header[6:], uint32(len(payload)))

	out := make([]byte, 0, headerSize+signatureSize+len(payload))
	out = append(out, header...)
	out = append(out, sign(header, payload, key)...)
	return append(out, payload...)
}

func sign(header, payload, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(header)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Parse decodes an envelope without checking its signature.
func Parse(b []byte) (Package, error) {
	if len(b) < headerSize+signatureSize {
		return Package{}, fmt.Errorf("package too short: %d bytes", len(b))
	}
	if !bytes.Equal(b[:4], []byte(Magic)) {
		return Package{}, fmt.Errorf("bad magic %q", b[:4])
	}
	size := binary.BigEndian.Uint32(b[6:headerSize])
	body := b[headerSize+signatureSize:]
	if uint32(len(body)) != size {
		return Package{}, fmt.Errorf("payload size mismatch: header says %d, got %d", size, len(body))
	}
	return Package{
		Version:   binary.BigEndian.Uint16(b[4:6]),
		Signature: b[headerSize : headerSize+signatureSize],
		Payload:   body,
	}, nil
}

// Verify decodes b and checks its signature against key.
func Verify(b, key []byte) (Package, error) {
	p, err := Parse(b)
	if err != nil {
		return p, err
	}
	if !hmac.Equal(p.Signature, sign(b[:headerSize], p.Payload, key)) {
		return p, fmt.Errorf("signature mismatch")
	}
	return p, nil
}
