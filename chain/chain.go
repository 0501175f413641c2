// Package chain binds the FamousJSONs token contract through go-ethereum.
//
// It reads what the mint-state updater needs (chain head, Transfer events,
// last mint block, current mint price), builds mint calldata for wallets,
// and polls for transaction receipts with a bounded number of attempts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrInvalidAddress is returned for a contract address that is not 0x-hex.
var ErrInvalidAddress = errors.New("chain: invalid contract address")

// Backend is what Contract needs from a node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Contract is a read-mostly wrapper around the deployed token.
type Contract struct {
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	backend  Backend
	logRange uint64
}

// Option configures a Contract.
type Option func(*Contract)

// WithLogRange splits Transfer scans into windows of at most n blocks, for
// providers that cap eth_getLogs ranges. 0 (default) scans in one query.
func WithLogRange(n uint64) Option {
	return func(c *Contract) { c.logRange = n }
}

// Dial connects to an Ethereum JSON-RPC endpoint and binds the contract.
func Dial(ctx context.Context, rpcURL, address string, opts ...Option) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	if !common.IsHexAddress(address) {
		client.Close()
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return New(common.HexToAddress(address), client, opts...)
}

// New binds an already-connected backend to the contract at addr.
func New(addr common.Address, backend Backend, opts ...Option) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(FamousJSONsABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}
	c := &Contract{
		abi:      parsed,
		address:  addr,
		contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
		backend:  backend,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address { return c.address }

// BlockNumber returns the current chain head.
func (c *Contract) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// LastMintBlock calls lastMintBlock().
func (c *Contract) LastMintBlock(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, "lastMintBlock")
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("chain: lastMintBlock out of range: %s", v)
	}
	return v.Uint64(), nil
}

// CurrentMintPrice calls getCurrentMintPrice(), in wei.
func (c *Contract) CurrentMintPrice(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "getCurrentMintPrice")
}

func (c *Contract) callUint(ctx context.Context, method string) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: %s: unexpected %d outputs", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

// TransferTokenIDs returns the decimal IDs of every token referenced by a
// Transfer event from fromBlock to the chain head, de-duplicated, in the
// order first seen.
func (c *Contract) TransferTokenIDs(ctx context.Context, fromBlock uint64) ([]string, error) {
	ev := c.abi.Events["Transfer"]

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	windows, err := c.windows(ctx, fromBlock)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, w := range windows {
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(w[0]),
			Addresses: []common.Address{c.address},
			Topics:    [][]common.Hash{{ev.ID}},
		}
		if w[1] != 0 {
			q.ToBlock = new(big.Int).SetUint64(w[1])
		}
		logs, err := c.backend.FilterLogs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("chain: filter Transfer logs from %d: %w", w[0], err)
		}
		for _, lg := range logs {
			if len(lg.Topics) != len(indexed)+1 {
				continue
			}
			fields := make(map[string]interface{})
			if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
				return nil, fmt.Errorf("chain: decode Transfer in tx %s: %w", lg.TxHash.Hex(), err)
			}
			id, ok := fields["tokenId"].(*big.Int)
			if !ok {
				continue
			}
			s := id.String()
			if !seen[s] {
				seen[s] = true
				ids = append(ids, s)
			}
		}
	}
	return ids, nil
}

// windows returns inclusive [from, to] block ranges. A zero upper bound means
// "latest".
func (c *Contract) windows(ctx context.Context, from uint64) ([][2]uint64, error) {
	if c.logRange == 0 {
		return [][2]uint64{{from, 0}}, nil
	}
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	var out [][2]uint64
	for start := from; start <= head; start += c.logRange {
		end := min(start+c.logRange-1, head)
		out = append(out, [2]uint64{start, end})
	}
	return out, nil
}

// MintCalldata ABI-encodes mintToken(to, tokenID) for a wallet-side
// eth_sendTransaction.
func (c *Contract) MintCalldata(to common.Address, tokenID *big.Int) ([]byte, error) {
	data, err := c.abi.Pack("mintToken", to, tokenID)
	if err != nil {
		return nil, fmt.Errorf("chain: pack mintToken: %w", err)
	}
	return data, nil
}

// WaitReceipt polls for the receipt of txHash. See WaitReceipt.
func (c *Contract) WaitReceipt(ctx context.Context, txHash common.Hash, opts PollOptions) (*types.Receipt, error) {
	return WaitReceipt(ctx, c.backend, txHash, opts)
}
