// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ethstore is a gridstore.Contract backed by the deployed grid
// contract on an Ethereum JSON-RPC node.
//
// Reads are eth_call. Mutations are signed transactions; each one is gas
// estimated first, so a revert surfaces as a rejection before anything is
// broadcast, and then waited on until it is mined. A mined transaction with
// a failed status is also a rejection.
package ethstore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/session"
)

// gasHeadroom is the percentage added on top of the node's gas estimate.
const gasHeadroom = 20

// ErrReadOnly is returned by mutations on a store opened without a key.
var ErrReadOnly = errors.New("store opened without a signing key")

// Backend is the node surface the store needs. *ethclient.Client
// implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config configures a Store.
//
// # Fields
//
//   - RPCURL: Node endpoint (http, https, ws, wss or ipc path). A websocket
//     or ipc endpoint is required for Notifications.
//   - Address: Contract address. Default: DefaultAddress.
//   - ChainID: Signing chain. Default: queried from the node.
//   - MineTimeout: Upper bound on waiting for a mutation to be mined.
//     Default: no bound beyond ctx.
type Config struct {
	RPCURL      string
	Address     string
	ChainID     int64
	MineTimeout time.Duration
}

// Store is a contract-backed grid store.
type Store struct {
	backend  Backend
	closer   func()
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	from     common.Address
	auth     *bind.TransactOpts
	timeout  time.Duration
	logger   *logging.Logger

	// txMu serializes signing so concurrent mutations draw distinct nonces.
	txMu sync.Mutex
}

var (
	_ gridstore.Contract = (*Store)(nil)
	_ gridstore.Notifier = (*Store)(nil)
)

// Dial connects to cfg.RPCURL and binds the grid contract.
//
// # Inputs
//
//   - creds: Signing credentials. Nil or keyless credentials open the store
//     read-only.
func Dial(ctx context.Context, cfg Config, creds *session.Credentials, logger *logging.Logger) (*Store, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("ethstore: RPC URL is required")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, gridstore.Unavailable(fmt.Errorf("dial %s: %w", cfg.RPCURL, err))
	}
	store, err := NewWithBackend(ctx, client, cfg, creds, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	store.closer = client.Close
	return store, nil
}

// NewWithBackend binds the grid contract on an existing backend.
func NewWithBackend(ctx context.Context, backend Backend, cfg Config, creds *session.Credentials, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	parsed, err := abi.JSON(strings.NewReader(gridABI))
	if err != nil {
		return nil, fmt.Errorf("ethstore: parse ABI: %w", err)
	}

	addr := cfg.Address
	if addr == "" {
		addr = DefaultAddress
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("ethstore: invalid contract address %q", addr)
	}
	address := common.HexToAddress(addr)

	s := &Store{
		backend:  backend,
		abi:      parsed,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		timeout:  cfg.MineTimeout,
		logger:   logger.With("contract", address.Hex()),
	}

	if creds.HasKey() {
		if err := s.bindSigner(ctx, cfg.ChainID, creds); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) bindSigner(ctx context.Context, configured int64, creds *session.Credentials) error {
	chainID := big.NewInt(configured)
	if configured == 0 {
		id, err := s.backend.ChainID(ctx)
		if err != nil {
			return gridstore.Unavailable(fmt.Errorf("query chain id: %w", err))
		}
		chainID = id
	}

	buf, err := creds.OpenKey()
	if err != nil {
		return err
	}
	defer buf.Destroy()

	key, err := crypto.ToECDSA(buf.Bytes())
	if err != nil {
		return fmt.Errorf("ethstore: load key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return fmt.Errorf("ethstore: build transactor: %w", err)
	}
	s.auth = auth
	s.from = auth.From
	return nil
}

// Address returns the bound contract address.
func (s *Store) Address() common.Address { return s.address }

// From returns the signing account, or the zero address when read-only.
func (s *Store) From() common.Address { return s.from }

// =============================================================================
// Reads
// =============================================================================

func (s *Store) GetGrid(ctx context.Context) (grid.Grid, error) {
	var out []any
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetGrid); err != nil {
		return nil, fmt.Errorf("call %s: %w", methodGetGrid, err)
	}
	rows, ok := firstAs[[][]bool](out)
	if !ok {
		return nil, fmt.Errorf("call %s: unexpected result %T", methodGetGrid, out)
	}
	return grid.Grid(rows), nil
}

func (s *Store) Width(ctx context.Context) (uint64, error) {
	return s.callUint(ctx, methodWidth)
}

func (s *Store) Height(ctx context.Context) (uint64, error) {
	return s.callUint(ctx, methodHeight)
}

func (s *Store) callUint(ctx context.Context, method string) (uint64, error) {
	var out []any
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return 0, fmt.Errorf("call %s: %w", method, err)
	}
	v, ok := firstAs[*big.Int](out)
	if !ok || v == nil || !v.IsUint64() {
		return 0, fmt.Errorf("call %s: unexpected result %v", method, out)
	}
	return v.Uint64(), nil
}

func firstAs[T any](out []any) (T, bool) {
	var zero T
	if len(out) != 1 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}

// =============================================================================
// Mutations
// =============================================================================

func (s *Store) ActivateCell(ctx context.Context, x, y uint64) (gridstore.Receipt, error) {
	return s.transact(ctx, methodActivateCell, new(big.Int).SetUint64(x), new(big.Int).SetUint64(y))
}

func (s *Store) ActivateCells(ctx context.Context, xs, ys []uint64) (gridstore.Receipt, error) {
	return s.transact(ctx, methodActivateCells, toBig(xs), toBig(ys))
}

func (s *Store) NextIteration(ctx context.Context) (gridstore.Receipt, error) {
	return s.transact(ctx, methodNextIteration)
}

func toBig(vs []uint64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = new(big.Int).SetUint64(v)
	}
	return out
}

// transact estimates, signs, sends and waits for one contract call.
func (s *Store) transact(ctx context.Context, method string, args ...any) (gridstore.Receipt, error) {
	if s.auth == nil {
		return gridstore.Receipt{}, gridstore.Rejected(ErrReadOnly)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input, err := s.abi.Pack(method, args...)
	if err != nil {
		return gridstore.Receipt{}, gridstore.Rejected(fmt.Errorf("pack %s: %w", method, err))
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &s.address, Data: input})
	if err != nil {
		return gridstore.Receipt{}, classify(fmt.Errorf("estimate %s: %w", method, err))
	}

	tx, err := s.send(ctx, method, gas+gas*gasHeadroom/100, args)
	if err != nil {
		return gridstore.Receipt{}, classify(fmt.Errorf("send %s: %w", method, err))
	}
	s.logger.Debug("transaction sent", "method", method, "tx", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return gridstore.Receipt{}, gridstore.Unavailable(fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err))
	}

	out := gridstore.Receipt{TxHash: tx.Hash().Hex()}
	if receipt.BlockNumber != nil {
		out.Block = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, gridstore.Rejected(fmt.Errorf("%s reverted in block %d", method, out.Block))
	}
	s.logger.Info("transaction mined", "method", method, "tx", out.TxHash, "block", out.Block)
	return out, nil
}

func (s *Store) send(ctx context.Context, method string, gasLimit uint64, args []any) (*types.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	opts := *s.auth
	opts.Context = ctx
	opts.GasLimit = gasLimit
	return s.contract.Transact(&opts, method, args...)
}

// classify treats node-side JSON-RPC errors as rejections and everything
// else as the node being unreachable.
func classify(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || strings.Contains(err.Error(), "execution reverted") {
		return gridstore.Rejected(err)
	}
	return gridstore.Unavailable(err)
}

// =============================================================================
// Notifications
// =============================================================================

// Notifications subscribes to the contract's logs. The backend must support
// subscriptions (websocket or ipc).
func (s *Store) Notifications(ctx context.Context) (<-chan grid.Notification, error) {
	logs := make(chan types.Log, 64)
	sub, err := s.backend.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Addresses: []common.Address{s.address}}, logs)
	if err != nil {
		return nil, gridstore.Unavailable(fmt.Errorf("subscribe logs: %w", err))
	}

	out := make(chan grid.Notification)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					s.logger.Warn("log subscription ended", "error", err)
				}
				return
			case l := <-logs:
				n, ok := s.decode(l)
				if !ok {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// decode maps one contract log to a notification. Removed logs and unknown
// topics are skipped.
func (s *Store) decode(l types.Log) (grid.Notification, bool) {
	if l.Removed || len(l.Topics) == 0 {
		return grid.Notification{}, false
	}
	event, err := s.abi.EventByID(l.Topics[0])
	if err != nil {
		return grid.Notification{}, false
	}
	values, err := s.abi.Unpack(event.Name, l.Data)
	if err != nil {
		s.logger.Warn("undecodable log", "event", event.Name, "error", err)
		return grid.Notification{}, false
	}

	n := grid.Notification{Block: l.BlockNumber}
	switch event.Name {
	case eventCellActivated:
		n.Kind = grid.NotifyCellActivated
		n.X, n.Y = uintAt(values, 0), uintAt(values, 1)
	case eventGridInitialized:
		n.Kind = grid.NotifyGridInitialized
		n.Width, n.Height = uintAt(values, 0), uintAt(values, 1)
	case eventNextIterationCompleted:
		n.Kind = grid.NotifyNextIterationCompleted
		if len(values) == 1 {
			if g, ok := values[0].([][]bool); ok {
				n.Grid = grid.Grid(g)
			}
		}
	default:
		return grid.Notification{}, false
	}
	return n, true
}

func uintAt(values []any, i int) uint64 {
	if i >= len(values) {
		return 0
	}
	if v, ok := values[i].(*big.Int); ok && v.IsUint64() {
		return v.Uint64()
	}
	return 0
}

// Close disconnects from the node when the store owns the connection.
func (s *Store) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
