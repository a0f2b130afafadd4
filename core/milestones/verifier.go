package milestones

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/spf13/viper"
)

// SignatureVerifier authorizes milestones. Deliberately a pluggable capability:
// today a static signer set, committee schemes can replace it without touching
// the validator state machine
type SignatureVerifier interface {
	Verify(essence []byte, signatures []ledger.MilestoneSignature) error
}

var (
	ErrSignatureInvalid = errors.New("milestone signature invalid")
	ErrNoAuthorizedKeys = errors.New("no authorized milestone keys configured")
)

type ed25519Verifier struct {
	authorized map[[32]byte]struct{}
	minValid   int
}

func NewEd25519Verifier(keys []ed25519.PublicKey, minValid int) (SignatureVerifier, error) {
	if len(keys) == 0 {
		return nil, ErrNoAuthorizedKeys
	}
	if minValid <= 0 || minValid > len(keys) {
		minValid = len(keys)
	}
	ret := &ed25519Verifier{
		authorized: make(map[[32]byte]struct{}, len(keys)),
		minValid:   minValid,
	}
	for _, k := range keys {
		if len(k) != ed25519.PublicKeySize {
			return nil, errors.Wrapf(ErrSignatureInvalid, "wrong public key size %d", len(k))
		}
		var kArr [32]byte
		copy(kArr[:], k)
		ret.authorized[kArr] = struct{}{}
	}
	return ret, nil
}

// NewVerifierFromConfig reads 'milestones.public_keys' (hex) and 'milestones.min_valid'
func NewVerifierFromConfig() (SignatureVerifier, error) {
	keysHex := viper.GetStringSlice("milestones.public_keys")
	keys := make([]ed25519.PublicKey, 0, len(keysHex))
	for _, kh := range keysHex {
		k, err := hex.DecodeString(kh)
		if err != nil {
			return nil, errors.Wrapf(err, "wrong public key '%s' in config", kh)
		}
		keys = append(keys, k)
	}
	return NewEd25519Verifier(keys, viper.GetInt("milestones.min_valid"))
}

// Verify counts valid signatures by distinct authorized keys
func (v *ed25519Verifier) Verify(essence []byte, signatures []ledger.MilestoneSignature) error {
	validKeys := make(map[[32]byte]struct{})
	for i := range signatures {
		if _, authorized := v.authorized[signatures[i].PublicKey]; !authorized {
			continue
		}
		if !ed25519.Verify(signatures[i].PublicKey[:], essence, signatures[i].Signature[:]) {
			return errors.Wrapf(ErrSignatureInvalid, "wrong signature by key %s",
				hex.EncodeToString(signatures[i].PublicKey[:4]))
		}
		validKeys[signatures[i].PublicKey] = struct{}{}
	}
	if len(validKeys) < v.minValid {
		return errors.Wrapf(ErrSignatureInvalid, "%d valid signatures, %d required", len(validKeys), v.minValid)
	}
	return nil
}
