package passport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/veilproof/riskscope/internal/core/domain"
)

type fakeIndexer struct {
	head uint64
	err  error
}

func (f *fakeIndexer) WalletActivity(context.Context, string) (*domain.ActivitySummary, error) {
	panic("not used")
}

func (f *fakeIndexer) CurrentBlock(context.Context) (uint64, error) {
	return f.head, f.err
}

func TestIssuePassportAnchorsAtCurrentBlock(t *testing.T) {
	issuer := NewIssuer(&fakeIndexer{head: 19_000_000}, "0xvault")

	p, err := issuer.IssuePassport(context.Background(), "0xc0ffee", 1800)
	if err != nil {
		t.Fatalf("IssuePassport() error = %v", err)
	}
	if p.Status != domain.PassportReadyToClaim {
		t.Errorf("Status = %q", p.Status)
	}
	if p.Commitment != "0xc0ffee" || p.RiskScore != 1800 {
		t.Errorf("claim metadata = %+v", p)
	}
	if p.BlockHeight != 19_000_000 {
		t.Errorf("BlockHeight = %d", p.BlockHeight)
	}
	if p.VaultAddress != "0xvault" {
		t.Errorf("VaultAddress = %q", p.VaultAddress)
	}
	if !strings.HasPrefix(p.Nullifier, "0x") || len(p.Nullifier) != 66 {
		t.Errorf("Nullifier = %q, want 32 random bytes hex-encoded", p.Nullifier)
	}
}

func TestIssuePassportNullifiersAreUnique(t *testing.T) {
	issuer := NewIssuer(&fakeIndexer{head: 1}, "0xvault")

	a, err := issuer.IssuePassport(context.Background(), "0x1", 100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := issuer.IssuePassport(context.Background(), "0x1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if a.Nullifier == b.Nullifier {
		t.Fatal("nullifiers must not repeat across issuances")
	}
}

func TestIssuePassportPropagatesIndexerFailure(t *testing.T) {
	issuer := NewIssuer(&fakeIndexer{err: errors.New("rpc down")}, "0xvault")

	_, err := issuer.IssuePassport(context.Background(), "0x1", 100)
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
