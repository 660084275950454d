// Package account holds the identity records for challenge creators and
// players.
package account

import "time"

// Account represents a registered identity that may create and join
// challenges. The wallet address is the identity funds move against.
type Account struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	WalletAddress string            `json:"wallet_address"`
	Active        bool              `json:"active"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
