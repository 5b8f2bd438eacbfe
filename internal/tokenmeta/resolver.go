package tokenmeta

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultName     = "Unknown"
	DefaultSymbol   = "UNKNOWN"
	DefaultDecimals = 18

	NativeName   = "Filecoin"
	NativeSymbol = "FIL"
)

// DefaultTimeout bounds each metadata call.
const DefaultTimeout = 5 * time.Second

// Metadata is the resolved name, symbol and decimals of a token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Resolver turns Reader calls into Metadata. It never fails and never
// retries: a failed or timed-out call yields the default for that field.
type Resolver struct {
	reader    Reader
	timeout   time.Duration
	logger    zerolog.Logger
	fallbacks *prometheus.CounterVec
}

// NewResolver builds a resolver. reader may be nil, in which case every
// non-native token resolves to defaults. fallbacks may be nil.
func NewResolver(reader Reader, timeout time.Duration, logger zerolog.Logger, fallbacks *prometheus.CounterVec) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		reader:    reader,
		timeout:   timeout,
		logger:    logger,
		fallbacks: fallbacks,
	}
}

// Resolve returns metadata for token. The native sentinel (zero address) is
// hardcoded.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) Metadata {
	if token == (common.Address{}) {
		return Metadata{Name: NativeName, Symbol: NativeSymbol, Decimals: DefaultDecimals}
	}

	md := Metadata{Name: DefaultName, Symbol: DefaultSymbol, Decimals: DefaultDecimals}
	if r.reader == nil {
		r.fallback(token, "all", nil)
		return md
	}

	if name, err := withTimeout(ctx, r.timeout, func(ctx context.Context) (string, error) {
		return r.reader.Name(ctx, token)
	}); err != nil {
		r.fallback(token, "name", err)
	} else {
		md.Name = name
	}

	if symbol, err := withTimeout(ctx, r.timeout, func(ctx context.Context) (string, error) {
		return r.reader.Symbol(ctx, token)
	}); err != nil {
		r.fallback(token, "symbol", err)
	} else {
		md.Symbol = symbol
	}

	if decimals, err := withTimeout(ctx, r.timeout, func(ctx context.Context) (uint8, error) {
		return r.reader.Decimals(ctx, token)
	}); err != nil {
		r.fallback(token, "decimals", err)
	} else {
		md.Decimals = decimals
	}

	return md
}

func (r *Resolver) fallback(token common.Address, field string, err error) {
	r.logger.Debug().Err(err).
		Str("token", token.Hex()).
		Str("field", field).
		Msg("token metadata call failed, using default")
	if r.fallbacks != nil {
		r.fallbacks.WithLabelValues(field).Inc()
	}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(callCtx)
}
