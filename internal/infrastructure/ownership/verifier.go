// Package ownership verifies wallet control through EIP-191 personal-sign
// signatures. It is the sole barrier preventing one party from submitting
// analysis requests against another party's wallet.
package ownership

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// MessageTemplate is the canonical signing template. Any deviation fails
// verification, which stops signature reuse from unrelated signing contexts.
const MessageTemplate = "RiskScope Analysis: %s at %d"

const (
	// maxSignatureAge bounds the replay window.
	maxSignatureAge = 300
	// maxClockSkew tolerates slightly future-dated client clocks.
	maxClockSkew = 60
)

type Verifier struct {
	now func() time.Time
}

func NewVerifier() *Verifier {
	return &Verifier{now: time.Now}
}

// VerifyOwnership checks freshness, message format, signature recovery, and
// signer match, in that order. Every failure is ErrUnauthorized with a
// reason; there is no partial success. Pure check, no external state.
func (v *Verifier) VerifyOwnership(walletAddress, signature, message string, timestamp int64) error {
	if err := v.verifyTimestamp(timestamp); err != nil {
		return err
	}
	if err := verifyMessageFormat(message, walletAddress, timestamp); err != nil {
		return err
	}
	recovered, err := recoverSigner(message, signature)
	if err != nil {
		return err
	}
	if recovered != common.HexToAddress(walletAddress) {
		return domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			errors.New("signature does not match the wallet address"))
	}
	return nil
}

func (v *Verifier) verifyTimestamp(timestamp int64) error {
	age := v.now().Unix() - timestamp
	if age < -maxClockSkew {
		return domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			errors.New("timestamp is in the future, check your system clock"))
	}
	if age > maxSignatureAge {
		return domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			fmt.Errorf("signature has expired, sign a new message (age %ds, max %ds)", age, maxSignatureAge))
	}
	return nil
}

func verifyMessageFormat(message, walletAddress string, timestamp int64) error {
	expected := SigningMessage(walletAddress, timestamp)
	if !strings.EqualFold(message, expected) {
		return domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			errors.New("message does not match the canonical signing template"))
	}
	return nil
}

func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			fmt.Errorf("decode signature: %w", err))
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig)))
	}
	// Wallets emit V as 27/28; secp256k1 recovery wants 0/1.
	recoveryID := sig[crypto.RecoveryIDOffset]
	if recoveryID >= 27 {
		recoveryID -= 27
	}
	if recoveryID > 1 {
		return common.Address{}, domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			fmt.Errorf("invalid recovery id %d", sig[crypto.RecoveryIDOffset]))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	normalized[crypto.RecoveryIDOffset] = recoveryID

	pub, err := crypto.SigToPub(personalSignHash(message), normalized)
	if err != nil {
		return common.Address{}, domain.WrapError(domain.ErrUnauthorized, "verify ownership",
			fmt.Errorf("recover signer: %w", err))
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// personalSignHash applies the EIP-191 prefix before hashing, matching what
// wallets sign under personal_sign.
func personalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// SigningMessage renders the canonical template for a wallet and timestamp.
// Exposed so clients and tests build the exact message the verifier expects.
func SigningMessage(walletAddress string, timestamp int64) string {
	return fmt.Sprintf(MessageTemplate, strings.ToLower(walletAddress), timestamp)
}
