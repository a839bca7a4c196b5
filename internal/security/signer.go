// Package security signs composed transaction bundles so clients can verify
// they came from this service unmodified.
package security

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// DefaultValidity is how long a signature stays valid
const DefaultValidity = 10 * time.Minute

var (
	// ErrSignatureMismatch is returned when the recovered signer differs from the claimed one
	ErrSignatureMismatch = errors.New("signature does not match signer")
	// ErrSignatureExpired is returned after ValidUntil
	ErrSignatureExpired = errors.New("signature expired")
)

// Signature is attached to a signed bundle
type Signature struct {
	Signer     common.Address `json:"signer"`
	Digest     common.Hash    `json:"digest"`
	Signature  hexutil.Bytes  `json:"signature"`
	Algorithm  string         `json:"algorithm"`
	Timestamp  int64          `json:"timestamp"`
	ValidUntil int64          `json:"validUntil"`
}

// Signed wraps a payload with its signature
type Signed struct {
	Payload   json.RawMessage `json:"payload"`
	Signature *Signature      `json:"_signature,omitempty"`
}

// Signer produces secp256k1 signatures over keccak256(payload JSON).
// A nil or disabled signer passes payloads through unsigned.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	validity time.Duration
	now      func() time.Time
}

// NewSigner parses a hex private key. An empty key returns nil, which disables signing.
func NewSigner(hexKey string, validity time.Duration) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	s := &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		validity: validity,
		now:      time.Now,
	}
	logrus.WithFields(logrus.Fields{"signer": s.address.Hex()}).Info("Bundle signing enabled")
	return s, nil
}

// WithClock replaces the time source
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Address is the signer's address, or the zero address when disabled
func (s *Signer) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// Sign marshals payload and signs its keccak256 digest
func (s *Signer) Sign(payload interface{}) (Signed, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Signed{}, fmt.Errorf("marshal payload: %w", err)
	}
	if s == nil {
		return Signed{Payload: raw}, nil
	}
	digest := crypto.Keccak256Hash(raw)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return Signed{}, fmt.Errorf("sign payload: %w", err)
	}
	now := s.now()
	return Signed{
		Payload: raw,
		Signature: &Signature{
			Signer:     s.address,
			Digest:     digest,
			Signature:  sig,
			Algorithm:  "secp256k1-keccak256",
			Timestamp:  now.Unix(),
			ValidUntil: now.Add(s.validity).Unix(),
		},
	}, nil
}

// Verify recovers the signer of a bundle and checks it against the claimed
// address and the validity window
func Verify(b Signed, now time.Time) error {
	if b.Signature == nil {
		return fmt.Errorf("bundle is not signed")
	}
	digest := crypto.Keccak256Hash(b.Payload)
	if digest != b.Signature.Digest {
		return fmt.Errorf("%w: payload digest differs", ErrSignatureMismatch)
	}
	pub, err := crypto.SigToPub(digest.Bytes(), b.Signature.Signature)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != b.Signature.Signer {
		return ErrSignatureMismatch
	}
	if now.Unix() > b.Signature.ValidUntil {
		return ErrSignatureExpired
	}
	return nil
}
