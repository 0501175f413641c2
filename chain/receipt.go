package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReceiptTimeout is returned when no receipt appears within the
	// configured number of attempts.
	ErrReceiptTimeout = errors.New("chain: transaction receipt not found")
	// ErrTxFailed is returned when the transaction was mined but reverted.
	ErrTxFailed = errors.New("chain: transaction reverted")
)

// ReceiptFetcher is satisfied by *ethclient.Client and Backend.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// PollOptions bounds WaitReceipt. Zero values mean 60 attempts 2s apart.
type PollOptions struct {
	Attempts int
	Interval time.Duration
}

func (o *PollOptions) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = 60
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
}

// WaitReceipt polls for the receipt of txHash until it is found, the attempt
// budget runs out or ctx is cancelled. Node errors, "not found" included, are
// retried: receipts routinely lag the transaction hash.
func WaitReceipt(ctx context.Context, f ReceiptFetcher, txHash common.Hash, opts PollOptions) (*types.Receipt, error) {
	opts.defaults()

	var lastErr error
	for attempt := 1; ; attempt++ {
		r, err := f.TransactionReceipt(ctx, txHash)
		if err == nil && r != nil {
			if r.Status == types.ReceiptStatusFailed {
				return r, fmt.Errorf("%w: %s", ErrTxFailed, txHash.Hex())
			}
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
		}

		if attempt >= opts.Attempts {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %s after %d attempts (last error: %v)", ErrReceiptTimeout, txHash.Hex(), attempt, lastErr)
			}
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrReceiptTimeout, txHash.Hex(), attempt)
		}

		t := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
