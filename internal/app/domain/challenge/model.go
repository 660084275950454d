// Package challenge holds the wagering challenge domain model.
package challenge

import "time"

// Status represents the lifecycle state of a challenge. Transitions only move
// forward: Active is the sole non-terminal state.
type Status string

const (
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Type tags what submitted scores represent. It does not affect settlement.
type Type string

const (
	TypeSteps    Type = "steps"
	TypeDistance Type = "distance"
	TypeDuration Type = "duration"
	TypeCalories Type = "calories"
)

// Denomination selects which asset ledger holds a challenge's funds. Fixed at
// creation, never mixed.
type Denomination string

const (
	DenomGas   Denomination = "gas"
	DenomToken Denomination = "token"
)

// Challenge represents one wager event with a pooled stake, a time window and
// a single eventual winner.
type Challenge struct {
	ID               string       `json:"id"`
	Creator          string       `json:"creator"`
	EntryFee         int64        `json:"entry_fee"`
	TotalPool        int64        `json:"total_pool"`
	StartTime        time.Time    `json:"start_time"`
	EndTime          time.Time    `json:"end_time"`
	ParticipantCount int32        `json:"participant_count"`
	Status           Status       `json:"status"`
	Type             Type         `json:"type"`
	Goal             int64        `json:"goal"`
	Denomination     Denomination `json:"denomination"`
	IsPublic         bool         `json:"is_public"`
	Winner           string       `json:"winner,omitempty"`
	PlatformFee      int64        `json:"platform_fee,omitempty"`
	WinnerPayout     int64        `json:"winner_payout,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Participant represents one player's membership and score record within a
// challenge. Records are created at join time and never deleted; they remain
// as the settlement audit trail.
type Participant struct {
	ID               string    `json:"id"`
	ChallengeID      string    `json:"challenge_id"`
	Player           string    `json:"player"`
	Score            int64     `json:"score"`
	HasJoined        bool      `json:"has_joined"`
	HasSubmitted     bool      `json:"has_submitted"`
	LastSubmission   time.Time `json:"last_submission,omitempty"`
	VerificationHash string    `json:"verification_hash,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ValidType reports whether t is a known challenge type.
func ValidType(t Type) bool {
	switch t {
	case TypeSteps, TypeDistance, TypeDuration, TypeCalories:
		return true
	}
	return false
}

// ValidDenomination reports whether d is a supported denomination.
func ValidDenomination(d Denomination) bool {
	return d == DenomGas || d == DenomToken
}
