package projectstate

import "math/big"

// BlocksTilDiscount returns the blocks left before the mint price next steps
// down. A zero (or nil) price has no further discount and yields 0.
//
// A head behind lastMint (lagging node) counts as zero elapsed blocks.
func BlocksTilDiscount(price *big.Int, head, lastMint, interval uint64) uint64 {
	if price == nil || price.Sign() == 0 || interval == 0 {
		return 0
	}
	var elapsed uint64
	if head > lastMint {
		elapsed = head - lastMint
	}
	return interval - elapsed%interval
}

// BlocksTilFree projects how many blocks until the price drops below
// threshold, assuming no mint happens meanwhile. Each discount takes 25% off
// with integer division, as the contract does.
func BlocksTilFree(price *big.Int, tilDiscount, interval uint64, threshold *big.Int) uint64 {
	if price == nil {
		return tilDiscount
	}
	if threshold == nil || threshold.Sign() <= 0 {
		threshold = big.NewInt(1)
	}

	seventyFive := big.NewInt(75)
	hundred := big.NewInt(100)
	discount := func(p *big.Int) {
		p.Mul(p, seventyFive)
		p.Quo(p, hundred)
	}

	total := tilDiscount
	p := new(big.Int).Set(price)
	discount(p)
	for p.Cmp(threshold) >= 0 {
		discount(p)
		total += interval
	}
	return total
}
