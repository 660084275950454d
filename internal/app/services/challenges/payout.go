package challenges

// PlatformFeePercent is the fixed share of the pool retained by the operator
// at settlement.
const PlatformFeePercent = 5

// SplitPool computes the settlement split for a pool. Integer arithmetic with
// floor division: the truncation remainder accrues entirely to the winner, so
// platformFee + winnerPayout == totalPool exactly for every totalPool >= 0.
func SplitPool(totalPool int64) (platformFee, winnerPayout int64) {
	if totalPool <= 0 {
		return 0, 0
	}
	platformFee = totalPool * PlatformFeePercent / 100
	winnerPayout = totalPool - platformFee
	return platformFee, winnerPayout
}
