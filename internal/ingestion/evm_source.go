package ingestion

import (
	"RailLedger/internal/event"
	"RailLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// ChainClient is the subset of *ethclient.Client the poller uses.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Sink receives decoded events in chain order. An error stops the current
// range; it is polled again on the next tick.
type Sink func(ctx context.Context, evt event.Event) error

// Delivery hands an event to the reducer goroutine and carries back the
// result of applying it.
type Delivery struct {
	Event  event.Event
	Result chan<- error
}

// ChannelSink forwards events to the reducer and waits for each result.
func ChannelSink(ch chan<- Delivery) Sink {
	return func(ctx context.Context, evt event.Event) error {
		result := make(chan error, 1)
		select {
		case ch <- Delivery{Event: evt, Result: result}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EVMSourceConfig tunes the poller.
type EVMSourceConfig struct {
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
	// ScanCalls fetches every block in range to find burnForFees calls,
	// which emit no payments log.
	ScanCalls bool
}

// EVMSource polls eth_getLogs for the payments contract and delivers
// decoded events in (block, transaction, log) order.
type EVMSource struct {
	client  ChainClient
	decoder *Decoder
	cfg     EVMSourceConfig
	next    uint64
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewEVMSource(client ChainClient, decoder *Decoder, cfg EVMSourceConfig, logger zerolog.Logger, metrics *observability.Metrics) *EVMSource {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	return &EVMSource{
		client:  client,
		decoder: decoder,
		cfg:     cfg,
		next:    cfg.StartBlock,
		logger:  logger,
		metrics: metrics,
	}
}

// Resume moves the poller to the block after the reducer's cursor. Events
// of a partially applied block are redelivered and skipped as duplicates.
func (s *EVMSource) Resume(cursorBlock uint64) {
	if cursorBlock >= s.next {
		s.next = cursorBlock
	}
}

// NextBlock is the first block the next poll will request.
func (s *EVMSource) NextBlock() uint64 {
	return s.next
}

// Run polls until ctx is cancelled. Errors are logged and the range is
// retried on the next tick.
func (s *EVMSource) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		caughtUp, err := s.PollOnce(ctx, sink)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			s.logger.Error().Err(err).Uint64("from_block", s.next).Msg("poll failed")
		}
		if !caughtUp && err == nil {
			continue // more history to catch up on
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type trigger struct {
	txIndex  uint
	isCall   bool
	logIndex uint
	evt      event.Event
}

// PollOnce delivers one block range. caughtUp reports whether the range
// reached the chain head.
func (s *EVMSource) PollOnce(ctx context.Context, sink Sink) (caughtUp bool, err error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		s.poll("error")
		return true, fmt.Errorf("block number: %w", err)
	}
	if s.next > head {
		s.poll("empty")
		return true, nil
	}
	to := s.next + s.cfg.BatchSize - 1
	if to > head {
		to = head
	}

	triggers, err := s.collect(ctx, s.next, to)
	if err != nil {
		s.poll("error")
		return true, err
	}

	for _, tr := range triggers {
		if err := sink(ctx, tr.evt); err != nil {
			s.poll("error")
			return true, fmt.Errorf("deliver %s at block %d: %w", tr.evt.EventType(), tr.evt.EventMeta().Block.Number, err)
		}
	}

	s.logger.Debug().Uint64("from", s.next).Uint64("to", to).Int("events", len(triggers)).Msg("polled range")
	s.next = to + 1
	s.poll("ok")
	if s.metrics != nil {
		s.metrics.SourceLag.WithLabelValues("evm").Set(float64(head - to))
	}
	return to == head, nil
}

func (s *EVMSource) collect(ctx context.Context, from, to uint64) ([]trigger, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.decoder.Contract()},
		Topics:    [][]common.Hash{s.decoder.Topics()},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	times := make(map[uint64]uint64)
	var triggers []trigger

	if s.cfg.ScanCalls {
		for n := from; n <= to; n++ {
			calls, ts, err := s.scanBlock(ctx, n)
			if err != nil {
				return nil, err
			}
			times[n] = ts
			triggers = append(triggers, calls...)
		}
	}

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ts, ok := times[lg.BlockNumber]
		if !ok {
			header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("header %d: %w", lg.BlockNumber, err)
			}
			ts = header.Time
			times[lg.BlockNumber] = ts
		}
		evt, err := s.decoder.DecodeLog(lg, ts)
		if errors.Is(err, ErrUnknownLog) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode log %s:%d: %w", lg.TxHash.Hex(), lg.Index, err)
		}
		triggers = append(triggers, trigger{txIndex: lg.TxIndex, logIndex: lg.Index, evt: evt})
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		a, b := triggers[i], triggers[j]
		ab, bb := a.evt.EventMeta().Block.Number, b.evt.EventMeta().Block.Number
		if ab != bb {
			return ab < bb
		}
		if a.txIndex != b.txIndex {
			return a.txIndex < b.txIndex
		}
		if a.isCall != b.isCall {
			return !a.isCall
		}
		return a.logIndex < b.logIndex
	})
	return triggers, nil
}

// scanBlock finds successful burnForFees calls in block n.
func (s *EVMSource) scanBlock(ctx context.Context, n uint64) ([]trigger, uint64, error) {
	block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return nil, 0, fmt.Errorf("block %d: %w", n, err)
	}
	meta := event.Block{Number: n, Timestamp: block.Time()}

	var out []trigger
	for i, tx := range block.Transactions() {
		call, ok, err := s.decoder.DecodeBurnForFees(tx, uint(i), meta)
		if err != nil {
			return nil, 0, fmt.Errorf("decode call %s: %w", tx.Hash().Hex(), err)
		}
		if !ok {
			continue
		}
		receipt, err := s.client.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return nil, 0, fmt.Errorf("receipt %s: %w", tx.Hash().Hex(), err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}
		out = append(out, trigger{txIndex: uint(i), isCall: true, evt: call})
	}
	return out, meta.Timestamp, nil
}

func (s *EVMSource) poll(result string) {
	if s.metrics != nil {
		s.metrics.EVMPolls.WithLabelValues(result).Inc()
	}
}
