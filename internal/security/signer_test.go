package security

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// well-known development key
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("0x"+testKey, time.Minute)
	require.NoError(t, err)
	return s.WithClock(func() time.Time { return now })
}

func TestSignAndVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newSigner(t, now)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	signed, err := s.Sign(map[string]interface{}{"transactions": []string{"0x01"}})
	require.NoError(t, err)
	require.NotNil(t, signed.Signature)
	assert.Len(t, signed.Signature.Signature, crypto.SignatureLength)
	assert.Equal(t, now.Add(time.Minute).Unix(), signed.Signature.ValidUntil)

	tampered := signed
	tampered.Payload = json.RawMessage(`{"transactions":["0x02"]}`)

	other := *signed.Signature
	other.Signer = common.HexToAddress("0x01")
	forged := Signed{Payload: signed.Payload, Signature: &other}

	tests := []struct {
		name    string
		bundle  Signed
		at      time.Time
		wantErr error
	}{
		{name: "valid", bundle: signed, at: now},
		{name: "tampered payload", bundle: tampered, at: now, wantErr: ErrSignatureMismatch},
		{name: "wrong signer", bundle: forged, at: now, wantErr: ErrSignatureMismatch},
		{name: "expired", bundle: signed, at: now.Add(2 * time.Minute), wantErr: ErrSignatureExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.bundle, tt.at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDisabledSigner(t *testing.T) {
	s, err := NewSigner("", 0)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, common.Address{}, s.Address())

	signed, err := s.Sign(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, signed.Signature)
	assert.JSONEq(t, `{"a":1}`, string(signed.Payload))
	assert.Error(t, Verify(signed, time.Now()))

	_, err = NewSigner("not-hex", 0)
	assert.Error(t, err)
}
