// Package projectstate keeps the cached mint-state document of the
// FamousJSONs collection in sync with the chain.
//
// The document is recomputed from scratch on every refresh: Transfer events
// since the checkpoint are folded into the minted set, the two pricing views
// are read, discount and free projections are derived, and the whole document
// is overwritten. Nothing is ever patched in place.
//
// Usage:
//
//	svc, err := projectstate.Open(cfg, contract, logger)
//	defer svc.Close()
//	svc.Start(ctx) // fast + slow triggers
//	st, err := svc.Updater().Refresh(ctx)
package projectstate

import (
	"errors"
	"math/big"
	"slices"
)

var (
	// ErrInvalidConfig is returned by Open and New for unusable settings.
	ErrInvalidConfig = errors.New("projectstate: invalid config")
	// ErrCorruptState is returned when the stored document cannot be decoded.
	ErrCorruptState = errors.New("projectstate: corrupt state document")
)

// StateKey is the document store key of the state document.
const StateKey = "state/current"

// State is the cached project state served to clients.
type State struct {
	LastMintedBlock   uint64   `json:"last_minted_block"`
	TokenIDsMinted    []string `json:"token_ids_minted"`
	CurrentMintPrice  string   `json:"current_mint_price"`
	CurrentBlock      uint64   `json:"current_block"`
	BlocksTilDiscount uint64   `json:"blocks_til_discount"`
	BlocksTilFree     uint64   `json:"blocks_til_free"`
}

// DefaultState is the document synthesized when none has been stored yet.
func DefaultState(genesis, head uint64) *State {
	return &State{
		LastMintedBlock:  genesis,
		TokenIDsMinted:   []string{},
		CurrentMintPrice: "0",
		CurrentBlock:     head,
	}
}

// Price returns CurrentMintPrice as wei. Unparseable values read as zero.
func (s *State) Price() *big.Int {
	p, ok := new(big.Int).SetString(s.CurrentMintPrice, 10)
	if !ok {
		return new(big.Int)
	}
	return p
}

// IsMinted reports whether tokenID is in the minted set.
func (s *State) IsMinted(tokenID string) bool {
	return slices.Contains(s.TokenIDsMinted, tokenID)
}

// Union appends the IDs of recent not already in old, keeping first-seen order.
func Union(old, recent []string) []string {
	out := make([]string, 0, len(old)+len(recent))
	seen := make(map[string]bool, len(old)+len(recent))
	for _, list := range [][]string{old, recent} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
