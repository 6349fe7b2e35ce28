package cardcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
)

const (
	// tapPayloadTag marks the first plaintext byte of a valid tap payload.
	tapPayloadTag = 0xc7
	// TapMACLen is the size of the truncated tap MAC in bytes.
	TapMACLen = 8
)

// sv2Prefix is the fixed session-vector prefix the secure element uses when
// deriving the per-read session key.
var sv2Prefix = []byte{0x3c, 0xc3, 0x00, 0x01, 0x00, 0x80}

// TapReason identifies which verification step rejected a tap. The detail is
// for server-side diagnostics only; clients receive one generic failure.
type TapReason int

const (
	TapReasonNone TapReason = iota
	TapReasonDecodeFailed
	TapReasonUIDMismatch
	TapReasonMACMismatch
	TapReasonReplay
)

func (r TapReason) String() string {
	switch r {
	case TapReasonNone:
		return "none"
	case TapReasonDecodeFailed:
		return "decode failed"
	case TapReasonUIDMismatch:
		return "uid mismatch"
	case TapReasonMACMismatch:
		return "mac mismatch"
	case TapReasonReplay:
		return "counter replay"
	default:
		return "unknown"
	}
}

// TapResult is the outcome of one tap verification.
type TapResult struct {
	Valid   bool
	UID     []byte
	Counter uint32
	Reason  TapReason
}

// DecryptTap decrypts a tap payload with the issuer-wide encryption key K1
// and extracts the UID and read counter. A payload that does not carry the
// expected tag byte yields ok=false rather than an error, since a wrong key
// and corrupted data are indistinguishable here.
func DecryptTap(encKey, payload []byte) (uid []byte, counter uint32, ok bool, err error) {
	if len(encKey) != blockSize {
		return nil, 0, false, validationErrorf("encryption key must be %d bytes, got %d", blockSize, len(encKey))
	}
	if len(payload) != blockSize {
		return nil, 0, false, nil
	}

	block, cerr := aes.NewCipher(encKey)
	if cerr != nil {
		return nil, 0, false, validationErrorf("failed to create cipher: %v", cerr)
	}
	iv := make([]byte, blockSize)
	plain := make([]byte, blockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, payload)

	if plain[0] != tapPayloadTag {
		return nil, 0, false, nil
	}
	uid = make([]byte, UIDLen)
	copy(uid, plain[1:1+UIDLen])
	ctrBytes := []byte{plain[8], plain[9], plain[10], 0}
	counter = binary.LittleEndian.Uint32(ctrBytes)
	return uid, counter, true, nil
}

// ExpectedTapMAC computes the truncated MAC the card should have produced for
// this UID and counter: the odd-indexed bytes of CMAC(CMAC(K2, SV2), "").
func ExpectedTapMAC(authKey, uid []byte, counter uint32) ([]byte, error) {
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	sv2 := make([]byte, 0, len(sv2Prefix)+UIDLen+3)
	sv2 = append(sv2, sv2Prefix...)
	sv2 = append(sv2, uid...)
	var ctr [4]byte
	binary.LittleEndian.PutUint32(ctr[:], counter)
	sv2 = append(sv2, ctr[0], ctr[1], ctr[2])

	sessionKey, err := CalculateCMAC(authKey, sv2)
	if err != nil {
		return nil, err
	}
	full, err := CalculateCMAC(sessionKey, nil)
	if err != nil {
		return nil, err
	}
	mac := make([]byte, 0, TapMACLen)
	for i := 1; i < blockSize; i += 2 {
		mac = append(mac, full[i])
	}
	return mac, nil
}

// Verifier checks tap payloads for one card's key material.
type Verifier struct {
	encKey  []byte
	authKey []byte
}

// NewVerifier builds a verifier from the encryption key K1 and the
// authentication key K2.
func NewVerifier(encKey, authKey []byte) (*Verifier, error) {
	if len(encKey) != blockSize {
		return nil, validationErrorf("encryption key must be %d bytes, got %d", blockSize, len(encKey))
	}
	if len(authKey) != blockSize {
		return nil, validationErrorf("authentication key must be %d bytes, got %d", blockSize, len(authKey))
	}
	return &Verifier{encKey: encKey, authKey: authKey}, nil
}

// Verify runs the full tap check: decrypt, optional UID match, session MAC,
// and strict counter increase over lastCounter. expectedUID may be nil when
// the caller has not yet identified the card.
func (v *Verifier) Verify(payload, tapMAC, expectedUID []byte, lastCounter uint32) TapResult {
	uid, counter, ok, err := DecryptTap(v.encKey, payload)
	if err != nil || !ok {
		return TapResult{Reason: TapReasonDecodeFailed}
	}
	if expectedUID != nil && !bytes.Equal(uid, expectedUID) {
		return TapResult{Reason: TapReasonUIDMismatch}
	}

	expected, err := ExpectedTapMAC(v.authKey, uid, counter)
	if err != nil {
		return TapResult{Reason: TapReasonMACMismatch}
	}
	if len(tapMAC) != TapMACLen || subtle.ConstantTimeCompare(tapMAC, expected) != 1 {
		return TapResult{Reason: TapReasonMACMismatch}
	}

	if counter <= lastCounter {
		return TapResult{Reason: TapReasonReplay}
	}
	return TapResult{Valid: true, UID: uid, Counter: counter}
}
