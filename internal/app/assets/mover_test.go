package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/storage/memory"
)

func TestLedgerMoverTransfer(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	mover := NewLedgerMover(challenge.DenomGas, store)

	if _, err := store.CreditBalance(ctx, challenge.DenomGas, "a", 100); err != nil {
		t.Fatal(err)
	}

	if err := mover.Transfer(ctx, 60, "a", "b"); err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	balA, _ := store.GetBalance(ctx, challenge.DenomGas, "a")
	balB, _ := store.GetBalance(ctx, challenge.DenomGas, "b")
	if balA.Amount != 40 || balB.Amount != 60 {
		t.Errorf("balances = (%d, %d), want (40, 60)", balA.Amount, balB.Amount)
	}

	if err := mover.Transfer(ctx, 50, "a", "b"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw: error = %v, want %v", err, ErrInsufficientFunds)
	}
	balA, _ = store.GetBalance(ctx, challenge.DenomGas, "a")
	if balA.Amount != 40 {
		t.Errorf("failed transfer changed the source balance: %d", balA.Amount)
	}
}

func TestLedgerMoverRejectsBadInput(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	mover := NewLedgerMover(challenge.DenomGas, store)

	if err := mover.Transfer(ctx, -1, "a", "b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("negative amount: error = %v, want %v", err, ErrUnauthorized)
	}
	if err := mover.Transfer(ctx, 10, "", "b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing source: error = %v, want %v", err, ErrUnauthorized)
	}
	if err := mover.Transfer(ctx, 10, "a", ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing destination: error = %v, want %v", err, ErrUnauthorized)
	}
	// Zero-amount transfers are a no-op, not an error.
	if err := mover.Transfer(ctx, 0, "a", "b"); err != nil {
		t.Errorf("zero amount: error = %v", err)
	}
}

func TestRegistryDispatch(t *testing.T) {
	store := memory.New()
	registry := NewRegistry(store)

	for _, denom := range []challenge.Denomination{challenge.DenomGas, challenge.DenomToken} {
		mover, err := registry.ForDenomination(denom)
		if err != nil {
			t.Fatalf("ForDenomination(%s) error: %v", denom, err)
		}
		ledgerMover, ok := mover.(*LedgerMover)
		if !ok {
			t.Fatalf("mover for %s has unexpected type %T", denom, mover)
		}
		if ledgerMover.Denomination() != denom {
			t.Errorf("mover for %s governs %s", denom, ledgerMover.Denomination())
		}
	}

	if _, err := registry.ForDenomination("doubloons"); !errors.Is(err, ErrUnknownDenom) {
		t.Errorf("unknown denomination: error = %v, want %v", err, ErrUnknownDenom)
	}
}

func TestLedgersAreIsolated(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	registry := NewRegistry(store)

	if _, err := store.CreditBalance(ctx, challenge.DenomGas, "a", 100); err != nil {
		t.Fatal(err)
	}

	tokenMover, _ := registry.ForDenomination(challenge.DenomToken)
	if err := tokenMover.Transfer(ctx, 50, "a", "b"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("token transfer against gas funds: error = %v, want %v", err, ErrInsufficientFunds)
	}
}
