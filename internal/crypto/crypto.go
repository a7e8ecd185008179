// Package crypto holds the curve and cipher primitives the envelope
// protocol is built from. Everything here is pure and safe for
// concurrent use; no function keeps state between calls.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidHash       = errors.New("hash must be 32 bytes")
	ErrDecryptFailed     = errors.New("decrypt failed")
)

const (
	// KeySize is the length of private keys, x-only public keys and
	// derived symmetric keys.
	KeySize = 32
	// nonceSize and tagSize define the ciphertext blob layout:
	// nonce || ciphertext || tag, base64-encoded.
	nonceSize = chacha20poly1305.NonceSize
	tagSize   = chacha20poly1305.Overhead
)

// conversationSalt is the fixed HKDF salt for symmetric key
// derivation. Changing it breaks interop with every deployed client.
var conversationSalt = []byte("nip44-v2")

// GenerateKeypair returns a fresh private key and its x-only public key.
func GenerateKeypair() (priv, pub []byte, err error) {
	pk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	defer pk.Zero()
	priv = pk.Serialize()
	pub = schnorr.SerializePubKey(pk.PubKey())
	return priv, pub, nil
}

// DerivePublicKey returns the x-only public key for a private key.
func DerivePublicKey(privKey []byte) ([]byte, error) {
	if len(privKey) != KeySize {
		return nil, ErrInvalidPrivateKey
	}
	pk := secp256k1.PrivKeyFromBytes(privKey)
	defer pk.Zero()
	if pk.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	return schnorr.SerializePubKey(pk.PubKey()), nil
}

// liftXOnly parses a 32-byte x-only public key into a curve point,
// trying the even-y prefix first, then odd-y. Either lift yields the
// same x-coordinate under ECDH, so the choice is not observable.
func liftXOnly(pubXOnly []byte) (*secp256k1.PublicKey, error) {
	if len(pubXOnly) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	compressed := make([]byte, 0, 33)
	compressed = append(compressed, 0x02)
	compressed = append(compressed, pubXOnly...)
	if pub, err := secp256k1.ParsePubKey(compressed); err == nil {
		return pub, nil
	}
	compressed[0] = 0x03
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ECDH computes the shared secret between a private key and an x-only
// public key: the x-coordinate of the product, 32 bytes.
func ECDH(privKey, pubXOnly []byte) ([]byte, error) {
	if len(privKey) != KeySize {
		return nil, ErrInvalidPrivateKey
	}
	pub, err := liftXOnly(pubXOnly)
	if err != nil {
		return nil, err
	}
	pk := secp256k1.PrivKeyFromBytes(privKey)
	defer pk.Zero()
	if pk.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	return secp256k1.GenerateSharedSecret(pk, pub), nil
}

// DeriveConversationKey turns an ECDH shared secret into the
// symmetric encryption key via HKDF-SHA256 with the protocol salt.
// One 32-byte expansion round is all that is ever needed.
func DeriveConversationKey(sharedSecret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, sharedSecret, conversationSalt, nil)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext for the recipient under the sender's key:
// ChaCha20-Poly1305 with a fresh random 12-byte nonce, output
// base64(nonce || ciphertext || tag).
func Encrypt(plaintext, recipientPub, senderPriv []byte) (string, error) {
	shared, err := ECDH(senderPriv, recipientPub)
	if err != nil {
		return "", err
	}
	key, err := DeriveConversationKey(shared)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	blob := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt is the inverse of Encrypt and fails closed: any parse or
// tag-verification failure returns ErrDecryptFailed with no detail.
// Callers treat that as "not addressed to this key", which is a
// frequent and expected outcome on a broadcast stream.
func Decrypt(blob string, senderPub, recipientPriv []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(raw) < nonceSize+tagSize {
		return nil, ErrDecryptFailed
	}
	shared, err := ECDH(recipientPriv, senderPub)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	key, err := DeriveConversationKey(shared)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Sign produces a 64-byte BIP-340 signature over a 32-byte hash.
// Nonce derivation is the library's deterministic construction, which
// never repeats a nonce for distinct messages under one key.
func Sign(hash, privKey []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHash
	}
	if len(privKey) != KeySize {
		return nil, ErrInvalidPrivateKey
	}
	pk := secp256k1.PrivKeyFromBytes(privKey)
	defer pk.Zero()
	if pk.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	sig, err := schnorr.Sign(pk, hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifySignature checks a 64-byte BIP-340 signature against a
// 32-byte hash and an x-only public key.
func VerifySignature(hash, sig, pubXOnly []byte) bool {
	if len(hash) != 32 || len(sig) != schnorr.SignatureSize {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubXOnly)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(hash, pub)
}
