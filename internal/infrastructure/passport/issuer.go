// Package passport produces claimable credential metadata for completed
// assessments. The nullifier is a fresh random value; nothing here is
// derived from a wallet address.
package passport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

type Issuer struct {
	indexer      ports.ChainIndexer
	vaultAddress string
}

func NewIssuer(indexer ports.ChainIndexer, vaultAddress string) *Issuer {
	return &Issuer{indexer: indexer, vaultAddress: vaultAddress}
}

// IssuePassport builds the claim metadata anchored at the current block
// height. Failures are reported to the caller, which records them inside the
// result payload instead of failing the task.
func (i *Issuer) IssuePassport(ctx context.Context, commitment string, riskScore int) (*domain.Passport, error) {
	nullifier := make([]byte, 32)
	if _, err := rand.Read(nullifier); err != nil {
		return nil, domain.WrapError(domain.ErrComputation, "generate nullifier", err)
	}

	height, err := i.indexer.CurrentBlock(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "anchor passport block height", err)
	}

	return &domain.Passport{
		Status:       domain.PassportReadyToClaim,
		Commitment:   commitment,
		Nullifier:    "0x" + hex.EncodeToString(nullifier),
		VaultAddress: i.vaultAddress,
		BlockHeight:  height,
		RiskScore:    riskScore,
	}, nil
}
