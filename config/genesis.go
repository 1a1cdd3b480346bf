package config

import (
	"strings"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0. It records the token-service
// identity and the host key in state and commits.
func CreateGenesisBlock(cfg *Config, state core.State, hostPriv crypto.PrivateKey) (*core.Block, error) {
	hostPub := hostPriv.Public()

	meta := &core.Meta{
		TokenContract: cfg.TokenService.Contract,
		Treasury:      cfg.TokenService.Treasury,
		Host:          hostPub.Hex(),
	}
	if err := state.SetMeta(meta); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, hostPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// The chain ID stands in for the tx root so genesis blocks of different
	// networks hash differently.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.ChainID))
	block.Sign(hostPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
