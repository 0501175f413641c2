package projectstate

import (
	"fmt"
	"math/big"
	"strings"
)

// SecondsPerBlock is the block time assumed by FormatBlockCountdown. It is an
// approximation; post-merge mainnet slots are 12s but missed slots stretch it.
const SecondsPerBlock = 12

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatBlockCountdown renders a block count as a rough wall-clock duration:
// "<1m", "~ 7mins" or "~ 2hrs 5mins".
func FormatBlockCountdown(blocks uint64) string {
	if blocks <= 4 {
		return "<1m"
	}
	minutes := blocks * SecondsPerBlock / 60
	hours, mins := minutes/60, minutes%60
	if hours > 0 {
		return fmt.Sprintf("~ %dhrs %dmins", hours, mins)
	}
	return fmt.Sprintf("~ %dmins", mins)
}

// FormatWeiAsEth renders a decimal wei string in ether with at most three
// decimals and no trailing zeros. Anything that rounds to 0 is "FREE".
func FormatWeiAsEth(wei string) string {
	v, ok := new(big.Int).SetString(strings.TrimSpace(wei), 10)
	if !ok {
		return "FREE"
	}
	s := new(big.Rat).SetFrac(v, weiPerEther).FloatString(3)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "0" || s == "-0" || s == "" {
		return "FREE"
	}
	return s
}

// Summary is State plus the human-readable strings the mint dialog shows.
type Summary struct {
	*State
	PriceEth     string `json:"price_eth"`
	NextDiscount string `json:"next_discount,omitempty"`
	FreeAfter    string `json:"free_after,omitempty"`
}

// Summarize renders s for display. Countdowns are omitted once minting is free.
func (s *State) Summarize() Summary {
	sum := Summary{State: s, PriceEth: FormatWeiAsEth(s.CurrentMintPrice)}
	if sum.PriceEth != "FREE" {
		sum.NextDiscount = FormatBlockCountdown(s.BlocksTilDiscount)
		sum.FreeAfter = FormatBlockCountdown(s.BlocksTilFree)
	}
	return sum
}
