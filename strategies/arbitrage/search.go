package arbitrage

import "math/big"

// TernarySearch looks for the input in [lo, hi] maximising profit, assuming
// profit is unimodal over the range. It returns the best input evaluated.
func TernarySearch(lo, hi *big.Int, iterations int, profit func(*big.Int) *big.Int) *big.Int {
	left := new(big.Int).Set(lo)
	right := new(big.Int).Set(hi)

	bestInput := new(big.Int).Set(lo)
	bestProfit := profit(bestInput)

	three := big.NewInt(3)
	for i := 0; i < iterations && new(big.Int).Sub(right, left).Cmp(big.NewInt(2)) > 0; i++ {
		third := new(big.Int).Sub(right, left)
		third.Quo(third, three)
		mid1 := new(big.Int).Add(left, third)
		mid2 := new(big.Int).Sub(right, third)

		profit1 := profit(mid1)
		profit2 := profit(mid2)

		if profit1.Cmp(bestProfit) > 0 {
			bestInput, bestProfit = mid1, profit1
		}
		if profit2.Cmp(bestProfit) > 0 {
			bestInput, bestProfit = mid2, profit2
		}

		if profit1.Cmp(profit2) > 0 {
			right = mid2
		} else {
			left = mid1
		}
	}

	if new(big.Int).Sub(right, left).Cmp(big.NewInt(maxRefineSteps)) > 0 {
		return bestInput
	}
	for x := new(big.Int).Set(left); x.Cmp(right) <= 0; x.Add(x, big.NewInt(1)) {
		if p := profit(x); p.Cmp(bestProfit) > 0 {
			bestInput, bestProfit = new(big.Int).Set(x), p
		}
	}
	return bestInput
}
