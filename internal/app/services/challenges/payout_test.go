package challenges

import "testing"

func TestSplitPool(t *testing.T) {
	cases := []struct {
		name       string
		pool       int64
		wantFee    int64
		wantPayout int64
	}{
		{name: "even split", pool: 1000, wantFee: 50, wantPayout: 950},
		{name: "two players at 100", pool: 200, wantFee: 10, wantPayout: 190},
		{name: "remainder goes to winner", pool: 199, wantFee: 9, wantPayout: 190},
		{name: "pool below fee granularity", pool: 19, wantFee: 0, wantPayout: 19},
		{name: "single unit", pool: 1, wantFee: 0, wantPayout: 1},
		{name: "empty pool", pool: 0, wantFee: 0, wantPayout: 0},
		{name: "negative pool", pool: -5, wantFee: 0, wantPayout: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, payout := SplitPool(tc.pool)
			if fee != tc.wantFee || payout != tc.wantPayout {
				t.Fatalf("SplitPool(%d) = (%d, %d), want (%d, %d)", tc.pool, fee, payout, tc.wantFee, tc.wantPayout)
			}
			if tc.pool > 0 && fee+payout != tc.pool {
				t.Fatalf("split of %d does not conserve the pool: %d + %d", tc.pool, fee, payout)
			}
		})
	}
}

func TestSplitPoolConservesEveryPool(t *testing.T) {
	for pool := int64(1); pool <= 10000; pool++ {
		fee, payout := SplitPool(pool)
		if fee+payout != pool {
			t.Fatalf("pool %d: fee %d + payout %d != pool", pool, fee, payout)
		}
		if fee < 0 || payout < 0 {
			t.Fatalf("pool %d: negative component (%d, %d)", pool, fee, payout)
		}
	}
}
