// Package ledger holds balance and transaction journal records for the asset
// ledgers backing challenge escrow.
package ledger

import (
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
)

// Transaction types recorded in the journal.
const (
	TxTypeDeposit = "deposit"
	TxTypeStake   = "stake"
	TxTypePayout  = "payout"
	TxTypeFee     = "fee"
	TxTypeRefund  = "refund"
)

// Balance is the amount held at an address in one denomination.
type Balance struct {
	Address      string                 `json:"address"`
	Denomination challenge.Denomination `json:"denomination"`
	Amount       int64                  `json:"amount"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Transaction journals one completed balance movement. Every transfer through
// an asset mover produces exactly one row.
type Transaction struct {
	ID           string                 `json:"id"`
	Denomination challenge.Denomination `json:"denomination"`
	Type         string                 `json:"type"`
	Amount       int64                  `json:"amount"`
	FromAddress  string                 `json:"from_address"`
	ToAddress    string                 `json:"to_address"`
	ReferenceID  string                 `json:"reference_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
