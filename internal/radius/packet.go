package radius

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"strings"

	"layeh.com/radius"
)

// buildVSA builds a Vendor-Specific Attribute value:
// Vendor-ID (4) + VSA-Type (1) + VSA-Length (1) + Value
func buildVSA(vendorID uint32, attrType byte, value []byte) radius.Attribute {
	result := make([]byte, 4+2+len(value))
	binary.BigEndian.PutUint32(result[0:4], vendorID)
	result[4] = attrType
	result[5] = byte(2 + len(value))
	copy(result[6:], value)
	return radius.Attribute(result)
}

// buildMikrotikVSA builds a MikroTik Vendor-Specific Attribute
func buildMikrotikVSA(attrType byte, value []byte) radius.Attribute {
	return buildVSA(MikrotikVendorID, attrType, value)
}

// buildMicrosoftVSA builds a Microsoft Vendor-Specific Attribute
func buildMicrosoftVSA(attrType byte, value []byte) radius.Attribute {
	return buildVSA(MicrosoftVendorID, attrType, value)
}

// getVSA extracts one inner vendor attribute from a parsed packet, descending
// exactly one level into type-26 containers. Returns nil when absent.
func getVSA(p *radius.Packet, vendorID uint32, attrType byte) []byte {
	for _, attr := range p.Attributes {
		if attr.Type != attrTypeVendorSpecific {
			continue
		}
		if len(attr.Attribute) < 6 {
			continue
		}
		if binary.BigEndian.Uint32(attr.Attribute[0:4]) != vendorID {
			continue
		}
		vsaType := attr.Attribute[4]
		vsaLen := int(attr.Attribute[5])
		if vsaType != attrType || vsaLen < 2 || 4+vsaLen > len(attr.Attribute) {
			continue
		}
		return attr.Attribute[6 : 4+vsaLen]
	}
	return nil
}

// CanonicalMAC uppercases a station identifier and strips every non-hex rune,
// so "aa-bb-cc-dd-ee-ff" and "AA:BB:CC:DD:EE:FF" compare equal.
func CanonicalMAC(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VerifyMessageAuthenticator checks attribute 80 over the raw datagram:
// HMAC-MD5 keyed by the shared secret, computed with the 16-byte value
// zeroed. Returns (present=false, ok=true) when the attribute is absent.
func VerifyMessageAuthenticator(wire, secret []byte) (present, ok bool) {
	if len(wire) < 20 {
		return false, false
	}

	var received []byte
	buf := make([]byte, len(wire))
	copy(buf, wire)

	// Walk the TLVs; zero the Message-Authenticator value in the copy
	for i := 20; i+2 <= len(buf); {
		t := buf[i]
		l := int(buf[i+1])
		if l < 2 || i+l > len(buf) {
			return present, false
		}
		if t == attrTypeMessageAuthenticator && l == 18 {
			received = make([]byte, 16)
			copy(received, buf[i+2:i+18])
			for j := i + 2; j < i+18; j++ {
				buf[j] = 0
			}
			present = true
		}
		i += l
	}
	if !present {
		return false, true
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(buf)
	return true, hmac.Equal(mac.Sum(nil), received)
}

// HasMessageAuthenticator reports whether the raw datagram carries attr 80
func HasMessageAuthenticator(wire []byte) bool {
	present, _ := VerifyMessageAuthenticator(wire, nil)
	return present
}

// VerifyCHAP checks a CHAP-Password (1 byte CHAP-Id + 16 byte response)
// against the stored cleartext password. The challenge defaults to the
// request authenticator when no CHAP-Challenge attribute was sent.
func VerifyCHAP(password string, chapPassword, challenge []byte) bool {
	if len(chapPassword) != 17 || len(challenge) == 0 {
		return false
	}
	chapID := chapPassword[0]
	response := chapPassword[1:]

	h := md5.New()
	h.Write([]byte{chapID})
	h.Write([]byte(password))
	h.Write(challenge)
	return bytes.Equal(h.Sum(nil), response)
}

// reconstruct64 rebuilds a 64-bit octet counter from its 32-bit base
// attribute and the companion gigawords attribute
func reconstruct64(low, gigawords uint32) int64 {
	return int64(low) + int64(gigawords)<<32
}

// splitDataCap splits a byte cap into the Mikrotik-Total-Limit value and its
// gigawords companion
func splitDataCap(capBytes int64) (low, gigawords uint32) {
	return uint32(capBytes & 0xFFFFFFFF), uint32(capBytes >> 32)
}
