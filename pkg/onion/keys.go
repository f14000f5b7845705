package onion

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// PublicKey is a thin wrapper around *rsa.PublicKey so callers outside
// this package never need to import crypto/rsa directly.
type PublicKey struct {
	key *rsa.PublicKey
}

// PrivateKey is a thin wrapper around *rsa.PrivateKey. It is owned
// exclusively by the node runtime and never serialized.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// GenerateKeyPair generates a fresh 2048-bit RSA keypair.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generating RSA key: %v", ErrCrypto, err)
	}
	return &PrivateKey{key: key}, &PublicKey{key: &key.PublicKey}, nil
}

// Public returns the public half of a private key.
func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: &p.key.PublicKey}
}

// Equal reports whether two public keys are the same key, by value — this
// is the basis of the path selector's self-exclusion rule.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil || pk.key == nil || other.key == nil {
		return pk == other
	}
	return pk.key.Equal(other.key)
}

// Encode serializes a public key as PKCS#1 PEM with CRLF line endings,
// then base64-standard encodes the PEM text, matching the directory's wire
// encoding for a node's published key.
func (pk *PublicKey) Encode() string {
	der := x509.MarshalPKCS1PublicKey(pk.key)
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: der}
	pemBytes := pem.EncodeToMemory(block)
	pemBytes = bytes.ReplaceAll(pemBytes, []byte("\n"), []byte("\r\n"))
	return base64.StdEncoding.EncodeToString(pemBytes)
}

// DecodePublicKey reverses Encode: base64-decode, then parse the PKCS#1
// PEM block.
func DecodePublicKey(encoded string) (*PublicKey, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrBadDirectoryEntry, err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrBadDirectoryEntry)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing PKCS1 public key: %v", ErrBadDirectoryEntry, err)
	}
	return &PublicKey{key: key}, nil
}
