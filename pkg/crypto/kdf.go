// kdf.go implements the symmetric key derivation for hybrid messages using
// SHAKE-256 (FIPS 202), an extendable-output function based on the Keccak
// sponge construction.
//
// The deriver combines the X25519 and Kyber shared secrets into a single
// 32-byte AEAD key:
//
//	K = SHAKE-256(len(label) || label || n || len(ss_x) || ss_x || len(ss_k) || ss_k, 256)
//
// Length prefixes are 4-byte big-endian integers so the input parsing is
// unambiguous, and the label gives domain separation: keys derived for this
// protocol cannot collide with keys derived elsewhere from the same secrets.
//
// When the recipient has no X25519 key on file, derivation runs from the KEM
// secret alone under a distinct label. This degraded mode is explicit: the
// deriver reports which mode executed and callers must carry that mode to the
// decrypting side.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
)

// DerivationMode identifies which secrets fed the message key derivation.
type DerivationMode uint8

const (
	// ModeHybrid derives from both the ECDH and KEM shared secrets
	ModeHybrid DerivationMode = iota + 1

	// ModeKEMOnly derives from the KEM shared secret alone. Used only when the
	// recipient published no X25519 key; never a silent fallback.
	ModeKEMOnly
)

// String returns a human-readable name for the derivation mode.
func (m DerivationMode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeKEMOnly:
		return "kem-only"
	default:
		return "unknown"
	}
}

// label returns the domain separation label for the mode.
func (m DerivationMode) label() string {
	if m == ModeKEMOnly {
		return constants.DomainSeparatorKEMOnly
	}
	return constants.DomainSeparatorHybrid
}

// DeriveKey derives key material using SHAKE-256 with domain separation.
//
// Each input is written with a 4-byte big-endian length prefix, preceded by
// the labeled domain separator and the input count, so distinct input splits
// can never produce the same absorbed stream.
func DeriveKey(domain string, inputs [][]byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 { // Max 1MB
		return nil, qerrors.NewCryptoError("DeriveKey", qerrors.ErrInvalidKeySize)
	}

	h := sha3.NewShake256()
	lenBuf := make([]byte, 4)

	domainBytes := []byte(domain)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(domainBytes)))
	h.Write(lenBuf)
	h.Write(domainBytes)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(inputs)))
	h.Write(lenBuf)

	for _, input := range inputs {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(input)))
		h.Write(lenBuf)
		h.Write(input)
	}

	output := make([]byte, outputLen)
	_, _ = h.Read(output) // SHAKE256.Read never fails

	return output, nil
}

// DeriveMessageKey derives the 32-byte AEAD key for one message.
//
// When ecdhSecret is non-nil both secrets are combined under the hybrid label
// and ModeHybrid is returned. When ecdhSecret is nil the key is derived from
// the KEM secret alone under the KEM-only label and ModeKEMOnly is returned.
// The two labels guarantee the modes can never produce the same key from the
// same KEM secret, so a mode mismatch between sender and receiver surfaces as
// an AEAD authentication failure rather than a wrong-but-valid plaintext.
//
// Returns:
//   - key: 32-byte symmetric key
//   - mode: which derivation executed, for logging and protocol framing
//   - error: Non-nil if a present secret has the wrong size
func DeriveMessageKey(ecdhSecret, kemSecret []byte) ([]byte, DerivationMode, error) {
	if len(kemSecret) != constants.KyberSharedSecretSize {
		return nil, 0, qerrors.NewCryptoError("DeriveMessageKey", qerrors.ErrInvalidKeySize)
	}

	if ecdhSecret == nil {
		key, err := DeriveKey(ModeKEMOnly.label(), [][]byte{kemSecret}, constants.MessageKeySize)
		if err != nil {
			return nil, 0, err
		}
		return key, ModeKEMOnly, nil
	}

	if len(ecdhSecret) != constants.X25519SharedSecretSize {
		return nil, 0, qerrors.NewCryptoError("DeriveMessageKey", qerrors.ErrInvalidKeySize)
	}

	key, err := DeriveKey(ModeHybrid.label(), [][]byte{ecdhSecret, kemSecret}, constants.MessageKeySize)
	if err != nil {
		return nil, 0, err
	}
	return key, ModeHybrid, nil
}
