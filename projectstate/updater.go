package projectstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/hazyhaar/famousjsons/kit"
	"github.com/hazyhaar/famousjsons/projectstate/internal/store"
)

// Chain is the on-chain data the Updater reads. *chain.Contract satisfies it.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransferTokenIDs(ctx context.Context, fromBlock uint64) ([]string, error)
	LastMintBlock(ctx context.Context) (uint64, error)
	CurrentMintPrice(ctx context.Context) (*big.Int, error)
}

// DocumentStore holds whole documents by key. Get returns nil, nil for a
// missing key. Put replaces the document.
type DocumentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, doc []byte) error
}

type refreshRecorder interface {
	LogRefresh(ctx context.Context, rec *store.RefreshRecord) error
}

type triggerKey struct{}

// WithTrigger labels refreshes run under ctx in the refresh log.
func WithTrigger(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, triggerKey{}, name)
}

func triggerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && v != "" {
		return v
	}
	return kit.GetTransport(ctx)
}

// Updater owns the state document. It holds no lock: concurrent refreshes
// each overwrite the whole document and the last write wins.
type Updater struct {
	chain     Chain
	docs      DocumentStore
	recorder  refreshRecorder
	config    *Config
	threshold *big.Int
	logger    *slog.Logger
}

// NewUpdater creates an Updater over docs.
func NewUpdater(cfg *Config, ch Chain, docs DocumentStore, logger *slog.Logger) (*Updater, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	threshold, err := cfg.freeThreshold()
	if err != nil {
		return nil, err
	}
	return &Updater{
		chain:     ch,
		docs:      docs,
		config:    cfg,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// Current returns the cached state, or the genesis default (with the live
// chain head) when nothing has been stored yet.
func (u *Updater) Current(ctx context.Context) (*State, error) {
	raw, err := u.docs.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("projectstate: read state: %w", err)
	}
	if raw == nil {
		head, err := u.chain.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("projectstate: default state: %w", err)
		}
		return DefaultState(u.config.GenesisBlock, head), nil
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.TokenIDsMinted == nil {
		st.TokenIDsMinted = []string{}
	}
	if st.CurrentMintPrice == "" {
		st.CurrentMintPrice = "0"
	}
	return &st, nil
}

// Refresh recomputes the state from the chain and overwrites the cached
// document. On error the cached document is left as it was.
func (u *Updater) Refresh(ctx context.Context) (*State, error) {
	start := time.Now()
	trigger := triggerFrom(ctx)

	st, err := u.compute(ctx)
	if err == nil {
		err = u.save(ctx, st)
	}
	u.record(ctx, trigger, time.Since(start), err)

	if err != nil {
		u.logger.Error("projectstate: refresh failed", "trigger", trigger, "error", err)
		return nil, err
	}
	u.logger.Info("projectstate: refreshed",
		"trigger", trigger,
		"block", st.CurrentBlock,
		"minted", len(st.TokenIDsMinted),
		"price", st.CurrentMintPrice,
		"blocks_til_discount", st.BlocksTilDiscount,
		"elapsed", time.Since(start),
	)
	return st, nil
}

// RefreshIfNearDiscount refreshes only when the cached blocks_til_discount is
// in (0, NearDiscountThreshold]. The decision uses the cached document, which
// may be up to one slow interval old.
func (u *Updater) RefreshIfNearDiscount(ctx context.Context) (bool, error) {
	st, err := u.Current(ctx)
	if err != nil {
		return false, err
	}
	if st.BlocksTilDiscount == 0 || st.BlocksTilDiscount > u.config.NearDiscountThreshold {
		return false, nil
	}
	if _, err := u.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (u *Updater) compute(ctx context.Context) (*State, error) {
	old, err := u.Current(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := u.chain.TransferTokenIDs(ctx, old.LastMintedBlock)
	if err != nil {
		return nil, fmt.Errorf("projectstate: transfer events: %w", err)
	}
	head, err := u.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("projectstate: block number: %w", err)
	}
	lastMint, err := u.chain.LastMintBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("projectstate: last mint block: %w", err)
	}
	price, err := u.chain.CurrentMintPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("projectstate: mint price: %w", err)
	}
	if price == nil {
		price = new(big.Int)
	}

	interval := u.config.BlocksPerDiscount
	tilDiscount := BlocksTilDiscount(price, head, lastMint, interval)

	return &State{
		// The checkpoint never moves backwards, e.g. before the first mint
		// when lastMintBlock() is still 0.
		LastMintedBlock:   max(lastMint, old.LastMintedBlock),
		TokenIDsMinted:    Union(old.TokenIDsMinted, recent),
		CurrentMintPrice:  price.String(),
		CurrentBlock:      head,
		BlocksTilDiscount: tilDiscount,
		BlocksTilFree:     BlocksTilFree(price, tilDiscount, interval, u.threshold),
	}, nil
}

func (u *Updater) save(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("projectstate: encode state: %w", err)
	}
	if err := u.docs.Put(ctx, StateKey, raw); err != nil {
		return fmt.Errorf("projectstate: write state: %w", err)
	}
	return nil
}

func (u *Updater) record(ctx context.Context, trigger string, d time.Duration, err error) {
	if u.recorder == nil {
		return
	}
	rec := &store.RefreshRecord{Trigger: trigger, OK: err == nil, Duration: d}
	if err != nil {
		rec.Error = err.Error()
	}
	// A cancelled request context must not drop the log row.
	if lerr := u.recorder.LogRefresh(context.WithoutCancel(ctx), rec); lerr != nil {
		u.logger.Warn("projectstate: refresh log", "error", lerr)
	}
}
