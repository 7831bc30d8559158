package radius

import (
	"bytes"
	"crypto/des"
	"crypto/sha1"
	"fmt"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
	"layeh.com/radius"
)

// MS-CHAPv2 verification (RFC 2759). PPPoE clients on Windows/MikroTik
// frequently negotiate this instead of plain CHAP, so the access handler
// accepts it when the Microsoft VSAs are present.

// mschapChallenge extracts MS-CHAP-Challenge (VSA 311/11)
func mschapChallenge(p *radius.Packet) []byte {
	return getVSA(p, MicrosoftVendorID, MSCHAPChallengeType)
}

// mschap2Response extracts MS-CHAP2-Response (VSA 311/25)
func mschap2Response(p *radius.Packet) []byte {
	return getVSA(p, MicrosoftVendorID, MSCHAP2ResponseType)
}

// verifyMSCHAP2 verifies an MS-CHAPv2 exchange. On success it returns the
// MS-CHAP2-Success payload the accept response must carry.
//
// Response layout: Ident(1) + Flags(1) + PeerChallenge(16) + Reserved(8) +
// NTResponse(24).
func verifyMSCHAP2(username, password string, challenge, response []byte) (bool, []byte) {
	if len(response) < 50 {
		return false, nil
	}

	peerChallenge := response[2:18]
	ntResponse := response[26:50]

	expected := ntResponseFor(challenge, peerChallenge, username, password)
	if !bytes.Equal(ntResponse, expected) {
		return false, nil
	}

	ident := response[0]
	authResponse := authenticatorResponse(password, ntResponse, peerChallenge, challenge, username)
	return true, []byte(fmt.Sprintf("%c%s", ident, authResponse))
}

// ntResponseFor computes the expected NT-Response
func ntResponseFor(authChallenge, peerChallenge []byte, username, password string) []byte {
	challenge := challengeHash(peerChallenge, authChallenge, username)
	return challengeResponse(challenge, ntPasswordHash(password))
}

// challengeHash derives the 8-byte challenge from peer and auth challenges
func challengeHash(peerChallenge, authChallenge []byte, username string) []byte {
	h := sha1.New()
	h.Write(peerChallenge)
	h.Write(authChallenge)
	h.Write([]byte(username))
	return h.Sum(nil)[:8]
}

// ntPasswordHash is MD4 over the UTF-16LE password
func ntPasswordHash(password string) []byte {
	units := utf16.Encode([]rune(password))
	unicode := make([]byte, len(units)*2)
	for i, u := range units {
		unicode[i*2] = byte(u)
		unicode[i*2+1] = byte(u >> 8)
	}
	h := md4.New()
	h.Write(unicode)
	return h.Sum(nil)
}

// challengeResponse DES-encrypts the challenge under the padded hash
func challengeResponse(challenge, passwordHash []byte) []byte {
	padded := make([]byte, 21)
	copy(padded, passwordHash)

	response := make([]byte, 24)
	desEncrypt(padded[0:7], challenge, response[0:8])
	desEncrypt(padded[7:14], challenge, response[8:16])
	desEncrypt(padded[14:21], challenge, response[16:24])
	return response
}

// desEncrypt expands a 7-byte key to an 8-byte parity-adjusted DES key and
// encrypts one block
func desEncrypt(key, clear, cipher []byte) {
	desKey := make([]byte, 8)
	desKey[0] = key[0]
	desKey[1] = (key[0] << 7) | (key[1] >> 1)
	desKey[2] = (key[1] << 6) | (key[2] >> 2)
	desKey[3] = (key[2] << 5) | (key[3] >> 3)
	desKey[4] = (key[3] << 4) | (key[4] >> 4)
	desKey[5] = (key[4] << 3) | (key[5] >> 5)
	desKey[6] = (key[5] << 2) | (key[6] >> 6)
	desKey[7] = key[6] << 1

	for i := range desKey {
		desKey[i] = setParityBit(desKey[i])
	}

	block, err := des.NewCipher(desKey)
	if err != nil {
		return
	}
	block.Encrypt(cipher, clear)
}

func setParityBit(b byte) byte {
	parity := byte(0)
	for i := 0; i < 7; i++ {
		parity ^= (b >> i) & 1
	}
	return (b & 0xFE) | (parity ^ 1)
}

// authenticatorResponse builds the "S=" string for MS-CHAP2-Success
func authenticatorResponse(password string, ntResponse, peerChallenge, authChallenge []byte, username string) string {
	hashHash := md4Sum(ntPasswordHash(password))

	h := sha1.New()
	h.Write(hashHash)
	h.Write(ntResponse)
	h.Write([]byte("Magic server to client signing constant"))
	digest := h.Sum(nil)

	challenge := challengeHash(peerChallenge, authChallenge, username)

	h2 := sha1.New()
	h2.Write(digest)
	h2.Write(challenge)
	h2.Write([]byte("Pad to make it do more than one iteration"))
	return fmt.Sprintf("S=%X", h2.Sum(nil))
}

func md4Sum(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}
