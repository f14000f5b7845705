package onion

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
)

// WrapLayer builds one onion layer addressed to destPubKey. It samples a
// fresh AES-256 key and nonce, encrypts payload under them, and seals the
// key material plus nextHop into an RSA-OAEP-SHA256 header so that only
// the holder of the matching private key can recover it.
//
// Layout: header(256) || body (AES-256-GCM ciphertext, tag appended).
func WrapLayer(destPubKey *PublicKey, nextHop string, payload []byte) ([]byte, error) {
	hop, err := encodeIPv4(nextHop)
	if err != nil {
		return nil, err
	}

	key := make([]byte, AESKeySize)
	nonce := make([]byte, AESNonceSize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: sampling AES key: %v", ErrCrypto, err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: sampling AES nonce: %v", ErrCrypto, err)
	}

	body, err := aesGCMSeal(key, nonce, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	headerPlain := make([]byte, 0, headerPlainSize)
	headerPlain = append(headerPlain, key...)
	headerPlain = append(headerPlain, nonce...)
	headerPlain = append(headerPlain, hop[:]...)

	header, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, destPubKey.key, headerPlain, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: RSA-OAEP encrypt: %v", ErrCrypto, err)
	}
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: unexpected header size %d", ErrCrypto, len(header))
	}

	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out, nil
}

// UnwrapLayer peels one onion layer using privKey, returning the next-hop
// address carried in the header and the decrypted inner packet.
func UnwrapLayer(privKey *PrivateKey, packet []byte) (nextHop string, inner []byte, err error) {
	if len(packet) < HeaderSize {
		return "", nil, fmt.Errorf("%w: packet is %d bytes, need at least %d", ErrMalformedPacket, len(packet), HeaderSize)
	}

	header := packet[:HeaderSize]
	body := packet[HeaderSize:]

	headerPlain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privKey.key, header, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: RSA-OAEP decrypt: %v", ErrDecrypt, err)
	}
	if len(headerPlain) != headerPlainSize {
		return "", nil, fmt.Errorf("%w: header plaintext is %d bytes, want %d", ErrDecrypt, len(headerPlain), headerPlainSize)
	}

	key := headerPlain[:AESKeySize]
	nonce := headerPlain[AESKeySize : AESKeySize+AESNonceSize]
	hop := headerPlain[AESKeySize+AESNonceSize:]

	plain, err := aesGCMOpen(key, nonce, body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: GCM open: %v", ErrDecrypt, err)
	}

	return decodeIPv4(hop), plain, nil
}

// aesGCMSeal and aesGCMOpen wrap crypto/aes + crypto/cipher exactly the
// way a small typed AEAD helper would: construct the cipher, construct
// the GCM mode, seal or open with no additional authenticated data (the
// wire format carries none).
func aesGCMSeal(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func aesGCMOpen(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}
