package cardcrypto

import (
	"crypto/aes"
	"fmt"
)

const blockSize = 16

// ValidationError reports malformed or mis-sized cryptographic input.
// It is fatal: callers must not retry with the same input.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// CalculateCMAC computes the AES-128 CMAC (RFC 4493) of message under key.
func CalculateCMAC(key, message []byte) ([]byte, error) {
	if len(key) != blockSize {
		return nil, validationErrorf("cmac key must be %d bytes, got %d", blockSize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, validationErrorf("failed to create cipher: %v", err)
	}

	// Subkeys K1/K2 from doubling the encrypted zero block
	l := make([]byte, blockSize)
	block.Encrypt(l, l)
	k1 := doubleBlock(l)
	k2 := doubleBlock(k1)

	numBlocks := (len(message) + blockSize - 1) / blockSize
	last := make([]byte, blockSize)
	switch {
	case numBlocks == 0:
		numBlocks = 1
		last[0] = 0x80
		xorBlock(last, k2)
	case len(message)%blockSize == 0:
		copy(last, message[len(message)-blockSize:])
		xorBlock(last, k1)
	default:
		rem := message[(numBlocks-1)*blockSize:]
		copy(last, rem)
		last[len(rem)] = 0x80
		xorBlock(last, k2)
	}

	x := make([]byte, blockSize)
	for i := 0; i < numBlocks-1; i++ {
		xorBlock(x, message[i*blockSize:(i+1)*blockSize])
		block.Encrypt(x, x)
	}
	xorBlock(x, last)
	block.Encrypt(x, x)

	return x, nil
}

// doubleBlock multiplies a 16-byte block by x in GF(2^128) with the
// RFC 4493 reduction constant 0x87.
func doubleBlock(in []byte) []byte {
	out := make([]byte, blockSize)
	var overflow byte
	for i := blockSize - 1; i >= 0; i-- {
		out[i] = in[i]<<1 | overflow
		overflow = in[i] >> 7
	}
	if overflow != 0 {
		out[blockSize-1] ^= 0x87
	}
	return out
}

func xorBlock(dst, src []byte) {
	for i := 0; i < blockSize; i++ {
		dst[i] ^= src[i]
	}
}
