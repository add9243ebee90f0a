// Package pki implements the Curve25519/AES-CCM scheme Meshtastic uses
// for public-key encrypted direct messages.
package pki

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand/v2"

	"github.com/pion/dtls/v3/pkg/crypto/ccm"
	"golang.org/x/crypto/curve25519"
)

const (
	keySize = 32
	// tagSize and nonceSize are fixed by the firmware's CCM parameters.
	tagSize   = 8
	nonceSize = 13
	// trailerSize is the extra nonce appended to every ciphertext.
	trailerSize = 4
)

// nonce builds the 16-byte packet nonce: [64-bit packet ID][32-bit
// sender][32-bit block counter], with the extra nonce overlaying the
// packet ID's high word.
func nonce(packetID, fromNode, extraNonce uint32) []byte {
	n := make([]byte, 16)
	binary.LittleEndian.PutUint64(n[0:], uint64(packetID))
	binary.LittleEndian.PutUint32(n[8:], fromNode)
	if extraNonce != 0 {
		binary.LittleEndian.PutUint32(n[4:], extraNonce)
	}
	return n
}

// NewKeyPair generates a Curve25519 key pair for the local node.
func NewKeyPair() (publicKey, privateKey []byte, err error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv.PublicKey().Bytes(), priv.Bytes(), nil
}

// sharedCipher derives the AES-CCM cipher from the X25519 shared secret
// of the two parties.
func sharedCipher(privateKey, peerPublicKey []byte) (ccm.CCM, error) {
	if len(privateKey) != keySize || len(peerPublicKey) != keySize {
		return nil, fmt.Errorf("keys must be %d bytes", keySize)
	}

	secret, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, errors.New("deriving shared secret failed")
	}

	key := sha256.Sum256(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return ccm.NewCCM(block, tagSize, nonceSize)
}

// Encrypt seals a payload for a peer. The random extra nonce rides along
// as a 4-byte trailer, as the firmware expects.
func Encrypt(plaintext, privateKey, peerPublicKey []byte, packetID, fromNode uint32) ([]byte, error) {
	c, err := sharedCipher(privateKey, peerPublicKey)
	if err != nil {
		return nil, err
	}

	// The extra nonce only needs uniqueness, not secrecy.
	extraNonce := uint32(mathrand.Int32())
	n := nonce(packetID, fromNode, extraNonce)

	ciphertext := c.Seal(nil, n[:nonceSize], plaintext, nil)

	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint32(trailer, extraNonce)
	return append(ciphertext, trailer...), nil
}

// Decrypt opens a payload sealed by a peer with Encrypt's layout.
func Decrypt(ciphertext, privateKey, peerPublicKey []byte, packetID, fromNode uint32) ([]byte, error) {
	if len(ciphertext) < trailerSize+tagSize {
		return nil, errors.New("ciphertext too short")
	}
	c, err := sharedCipher(privateKey, peerPublicKey)
	if err != nil {
		return nil, err
	}

	body := ciphertext[:len(ciphertext)-trailerSize]
	extraNonce := binary.LittleEndian.Uint32(ciphertext[len(ciphertext)-trailerSize:])
	n := nonce(packetID, fromNode, extraNonce)

	return c.Open(nil, n[:nonceSize], body, nil)
}
