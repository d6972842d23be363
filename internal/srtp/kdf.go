package srtp

import (
	"crypto/aes"
	"crypto/cipher"
)

// SRTP key derivation.
//  * r = index DIV key_derivation_rate (0 when the rate is 0).
//  * label selects which session key to produce.
//  * n is the length of the output in bytes.
// See https://tools.ietf.org/html/rfc3711#section-4.3
func deriveKey(masterKey, masterSalt []byte, r uint64, label byte, n int) []byte {
	//   x = key_id XOR master_salt, key_id = <label> || r
	// and the PRF input is x*2^16:
	//   xxxxxxxxxxxxxx00  <- salt (112 bits = 14 bytes)
	//   0000000x00000000  <- label
	//   00000000xxxxxx00  <- r
	var iv [aes.BlockSize]byte
	copy(iv[:], masterSalt)
	if r > 0 {
		xor64(iv[SaltLength-8:], trunc(r, 48))
	}
	iv[SaltLength-7] ^= label

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err) // master key length is validated by the caller
	}

	// AES-CM keystream, obtained by encrypting zeros.
	key := make([]byte, n)
	cipher.NewCTR(block, iv[:]).XORKeyStream(key, key)
	return key
}

// Truncate a 64-bit value to its lowest n bits.
func trunc(v uint64, n uint8) uint64 {
	return v & ((1 << n) - 1)
}

func xor32(buf []byte, v uint32) {
	buf[0] ^= byte(v >> 24)
	buf[1] ^= byte(v >> 16)
	buf[2] ^= byte(v >> 8)
	buf[3] ^= byte(v)
}

func xor64(buf []byte, v uint64) {
	xor32(buf[0:4], uint32(v>>32))
	xor32(buf[4:8], uint32(v))
}
