package cardcrypto

import "encoding/binary"

const (
	// IssuerSecretLen is the size of a merchant root key in bytes.
	IssuerSecretLen = 16
	// UIDLen is the size of a card UID in bytes.
	UIDLen = 7
)

// Domain-separation constants for the deterministic key hierarchy. Each key
// slot CMACs its own constant so no two slots can ever collide.
var (
	slotCardKey    = []byte{0x2d, 0x00, 0x3f, 0x75}
	slotK0         = []byte{0x2d, 0x00, 0x3f, 0x76}
	slotK1         = []byte{0x2d, 0x00, 0x3f, 0x77}
	slotK2         = []byte{0x2d, 0x00, 0x3f, 0x78}
	slotK3         = []byte{0x2d, 0x00, 0x3f, 0x79}
	slotK4         = []byte{0x2d, 0x00, 0x3f, 0x7a}
	slotCardIDHash = []byte{0x2d, 0x00, 0x3f, 0x7b}
)

// KeySet holds every key derived for one physical card.
type KeySet struct {
	CardKey    []byte
	K0         []byte
	K1         []byte
	K2         []byte
	K3         []byte
	K4         []byte
	CardIDHash []byte
}

func validateSecret(issuerSecret []byte) error {
	if len(issuerSecret) != IssuerSecretLen {
		return validationErrorf("issuer secret must be %d bytes, got %d", IssuerSecretLen, len(issuerSecret))
	}
	return nil
}

func validateUID(uid []byte) error {
	if len(uid) != UIDLen {
		return validationErrorf("uid must be %d bytes, got %d", UIDLen, len(uid))
	}
	return nil
}

// DeriveEncryptionKey derives K1, the tap-payload decryption key. It depends
// on the issuer secret only, so the backend can decrypt a tap from a card it
// has not yet identified.
func DeriveEncryptionKey(issuerSecret []byte) ([]byte, error) {
	if err := validateSecret(issuerSecret); err != nil {
		return nil, err
	}
	return CalculateCMAC(issuerSecret, slotK1)
}

// DeriveCardKey derives the per-card master key from the issuer secret, the
// card UID and the key version.
func DeriveCardKey(issuerSecret, uid []byte, version uint32) ([]byte, error) {
	if err := validateSecret(issuerSecret); err != nil {
		return nil, err
	}
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(slotCardKey)+UIDLen+4)
	msg = append(msg, slotCardKey...)
	msg = append(msg, uid...)
	msg = binary.LittleEndian.AppendUint32(msg, version)
	return CalculateCMAC(issuerSecret, msg)
}

// DeriveCardIDHash derives the privacy-preserving card identifier for a UID.
func DeriveCardIDHash(issuerSecret, uid []byte) ([]byte, error) {
	if err := validateSecret(issuerSecret); err != nil {
		return nil, err
	}
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	msg := append(append([]byte{}, slotCardIDHash...), uid...)
	return CalculateCMAC(issuerSecret, msg)
}

// DeriveAllKeys derives the full key set for one card. K0 and K2 through K4
// are chained under the card key; K1 and the card ID hash sit directly under
// the issuer secret.
func DeriveAllKeys(issuerSecret, uid []byte, version uint32) (*KeySet, error) {
	cardKey, err := DeriveCardKey(issuerSecret, uid, version)
	if err != nil {
		return nil, err
	}
	k1, err := DeriveEncryptionKey(issuerSecret)
	if err != nil {
		return nil, err
	}
	idHash, err := DeriveCardIDHash(issuerSecret, uid)
	if err != nil {
		return nil, err
	}

	ks := &KeySet{CardKey: cardKey, K1: k1, CardIDHash: idHash}
	for _, slot := range []struct {
		constant []byte
		dst      *[]byte
	}{
		{slotK0, &ks.K0},
		{slotK2, &ks.K2},
		{slotK3, &ks.K3},
		{slotK4, &ks.K4},
	} {
		key, err := CalculateCMAC(cardKey, slot.constant)
		if err != nil {
			return nil, err
		}
		*slot.dst = key
	}
	return ks, nil
}
