// Package assets moves value between ledger addresses. One mover exists per
// denomination; a challenge's denomination selects which mover governs its
// funds.
package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("transfer not authorized")
	ErrUnknownDenom      = errors.New("unknown denomination")
)

// Mover transfers a fixed amount of value from one custody address to
// another. The transfer is atomic: it either fully applies or leaves both
// balances untouched.
type Mover interface {
	Transfer(ctx context.Context, amount int64, from, to string) error
}

// LedgerMover implements Mover over the balance ledger of a single
// denomination.
type LedgerMover struct {
	denom challenge.Denomination
	store storage.LedgerStore
}

var _ Mover = (*LedgerMover)(nil)

// NewLedgerMover builds a mover for one denomination.
func NewLedgerMover(denom challenge.Denomination, store storage.LedgerStore) *LedgerMover {
	return &LedgerMover{denom: denom, store: store}
}

// Denomination returns the denomination this mover governs.
func (m *LedgerMover) Denomination() challenge.Denomination {
	return m.denom
}

func (m *LedgerMover) Transfer(ctx context.Context, amount int64, from, to string) error {
	if amount < 0 {
		return fmt.Errorf("negative amount %d: %w", amount, ErrUnauthorized)
	}
	if from == "" || to == "" {
		return fmt.Errorf("missing address: %w", ErrUnauthorized)
	}
	if amount == 0 {
		return nil
	}
	if err := m.store.ApplyTransfer(ctx, m.denom, from, to, amount); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return fmt.Errorf("%s transfer of %d from %s: %w", m.denom, amount, from, ErrInsufficientFunds)
		}
		return err
	}
	return nil
}

// Registry resolves movers by denomination. Dispatch is a tagged lookup, not
// parallel code paths per asset class.
type Registry struct {
	movers map[challenge.Denomination]Mover
}

// NewRegistry builds a registry over the given ledger store with one mover
// per supported denomination.
func NewRegistry(store storage.LedgerStore) *Registry {
	return &Registry{movers: map[challenge.Denomination]Mover{
		challenge.DenomGas:   NewLedgerMover(challenge.DenomGas, store),
		challenge.DenomToken: NewLedgerMover(challenge.DenomToken, store),
	}}
}

// ForDenomination returns the mover governing the given denomination.
func (r *Registry) ForDenomination(denom challenge.Denomination) (Mover, error) {
	mover, ok := r.movers[denom]
	if !ok {
		return nil, fmt.Errorf("%q: %w", denom, ErrUnknownDenom)
	}
	return mover, nil
}
