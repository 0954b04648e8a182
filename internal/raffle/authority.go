package raffle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const minProgramKeyLength = 32

var escrowSalt = []byte("homechance-escrow")

// Authority is the capability presented with a value movement. User accounts are moved
// by their own Signer; escrow accounts only by the Seal derived for their raffle.
type Authority struct {
	Signer AccountID
	Seal   []byte
}

// SignerAuthority authorizes a movement signed directly by account.
func SignerAuthority(account AccountID) Authority {
	return Authority{Signer: account}
}

// AuthorityDeriver derives the escrow address and scoped escrow authority of a raffle
// from the program key. Derivation is deterministic and holds no state.
type AuthorityDeriver struct {
	programKey []byte
	programID  string
}

func NewAuthorityDeriver(programKey []byte) (*AuthorityDeriver, error) {
	if len(programKey) < minProgramKeyLength {
		return nil, fmt.Errorf("program key must be at least %d bytes", minProgramKeyLength)
	}

	id := sha256.Sum256(programKey)
	return &AuthorityDeriver{
		programKey: append([]byte(nil), programKey...),
		programID:  hex.EncodeToString(id[:8]),
	}, nil
}

// Escrow returns the escrow address of raffleID.
func (d *AuthorityDeriver) Escrow(raffleID string) AccountID {
	sum := sha256.Sum256([]byte("escrow:" + d.programID + ":" + raffleID))
	return AccountID("escrow_" + hex.EncodeToString(sum[:20]))
}

// Authority returns the capability that moves value out of raffleID's escrow.
func (d *AuthorityDeriver) Authority(raffleID string) (Authority, error) {
	reader := hkdf.New(sha256.New, d.programKey, escrowSalt, []byte("escrow-authority:"+raffleID))

	seal := make([]byte, 32)
	if _, err := io.ReadFull(reader, seal); err != nil {
		return Authority{}, fmt.Errorf("derive escrow authority: %w", err)
	}

	return Authority{Signer: d.Escrow(raffleID), Seal: seal}, nil
}
