package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidSeed     = errors.New("invalid master seed")
	ErrEmptyLabel      = errors.New("empty context label")
	ErrInvalidNpub     = errors.New("invalid npub")
)

const (
	hkdfInfoSeed   = "bitchat/identity/seed/v1"
	hkdfInfoDevice = "bitchat/identity/device/v1"
	hkdfInfoGeo    = "bitchat/identity/geohash/v1:"

	npubPrefix = "npub"
	nsecPrefix = "nsec"
)

// Identity is a usable keypair: the 32-byte private scalar, its
// x-only public key, and the bech32-encoded public form.
type Identity struct {
	PrivateKey []byte
	PublicKey  []byte
	Npub       string
}

// PublicKeyHex returns the hex form used in wire events.
func (id Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.PublicKey)
}

// NewMasterSeed creates fresh 256-bit entropy and returns the backup
// mnemonic together with the 32-byte master seed it encodes.
func NewMasterSeed() (mnemonic string, seed []byte, err error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	seed, err = SeedFromMnemonic(mnemonic)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, seed, nil
}

// SeedFromMnemonic re-derives the master seed from a backup mnemonic.
// The same mnemonic always yields the same seed.
func SeedFromMnemonic(mnemonic string) ([]byte, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	long := bip39.NewSeed(mnemonic, "")
	return hkdfExpand(long, hkdfInfoSeed, 32)
}

// deriveIdentity maps (seed, info) to a keypair. The HKDF stream is
// read in 32-byte candidates until one lands in [1, n), so the
// scalar is uniform and the mapping stays deterministic.
func deriveIdentity(seed []byte, info string) (Identity, error) {
	if len(seed) != 32 {
		return Identity{}, ErrInvalidSeed
	}
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	var candidate [32]byte
	for {
		if _, err := io.ReadFull(reader, candidate[:]); err != nil {
			return Identity{}, err
		}
		var scalar secp256k1.ModNScalar
		if overflow := scalar.SetBytes(&candidate); overflow != 0 || scalar.IsZero() {
			continue
		}
		priv := secp256k1.NewPrivateKey(&scalar)
		pub := schnorr.SerializePubKey(priv.PubKey())
		npub, err := EncodeNpub(pub)
		if err != nil {
			return Identity{}, err
		}
		id := Identity{
			PrivateKey: priv.Serialize(),
			PublicKey:  pub,
			Npub:       npub,
		}
		priv.Zero()
		return id, nil
	}
}

// EncodeNpub encodes an x-only public key in its bech32 public form.
func EncodeNpub(pub []byte) (string, error) {
	conv, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(npubPrefix, conv)
}

// DecodeNpub is the inverse of EncodeNpub.
func DecodeNpub(npub string) ([]byte, error) {
	hrp, data, err := bech32.Decode(npub)
	if err != nil || hrp != npubPrefix {
		return nil, ErrInvalidNpub
	}
	pub, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil || len(pub) != 32 {
		return nil, ErrInvalidNpub
	}
	return pub, nil
}

// EncodeNsec encodes a private key for backup display. Never logged.
func EncodeNsec(priv []byte) (string, error) {
	conv, err := bech32.ConvertBits(priv, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(nsecPrefix, conv)
}

func hkdfExpand(secret []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
