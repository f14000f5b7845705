// Package onion implements the Cepa layered onion-packet codec: wrapping
// and unwrapping per-hop layers, composing a full onion over a path, and
// selecting a path from a directory snapshot.
package onion

import "errors"

// TerminalHop is the sentinel next-hop address meaning "this layer is
// terminal; the decrypted body is the user payload". It is never a valid
// address to originate a message to.
const TerminalHop = "0.0.0.0"

// RSAKeyBits is the fixed RSA modulus size. The wire format hard-codes a
// 256-byte header, which only holds for 2048-bit keys.
const RSAKeyBits = 2048

// HeaderSize is the size in bytes of the RSA-OAEP-SHA256 header for a
// 2048-bit key.
const HeaderSize = RSAKeyBits / 8

// AESKeySize and AESNonceSize are the sizes of the per-layer symmetric key
// material carried inside the RSA header.
const (
	AESKeySize   = 32
	AESNonceSize = 12
)

// headerPlainSize is the plaintext size of the RSA header:
// aes_key(32) || aes_nonce(12) || next_hop_ipv4(4).
const headerPlainSize = AESKeySize + AESNonceSize + 4

// Sentinel errors covering the ways a packet or directory entry can fail
// to be processed.
var (
	ErrMalformedPacket   = errors.New("cepa: malformed packet")
	ErrDecrypt           = errors.New("cepa: decryption failed")
	ErrCrypto            = errors.New("cepa: cryptographic operation failed")
	ErrInsufficientNodes = errors.New("cepa: insufficient nodes for path selection")
	ErrUnknownNode       = errors.New("cepa: unknown node")
	ErrBadDirectoryEntry = errors.New("cepa: directory entry has an invalid host")
)

// NodeDescriptor is a single directory entry: a node's advertised IPv4
// address and its RSA public key, base64-of-PEM encoded on the wire.
type NodeDescriptor struct {
	Host   string `json:"host"`
	PubKey string `json:"pub_key"`
}

// DirectorySnapshot is a versioned, ordered view of overlay membership.
type DirectorySnapshot struct {
	Timestamp uint64           `json:"timestamp"`
	Entries   []NodeDescriptor `json:"list"`
}

// EmptySnapshot returns the zero-value snapshot (timestamp 0, no entries),
// which any non-empty pull from the directory supersedes.
func EmptySnapshot() DirectorySnapshot {
	return DirectorySnapshot{Timestamp: 0, Entries: nil}
}

// LayerSpec describes one onion layer to be built by BuildOnion: the
// public key of the node that will decrypt it, and the next-hop address
// that decrypter must forward to (or TerminalHop at the last layer).
type LayerSpec struct {
	NextHop string
	PubKey  *PublicKey
}
