package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// ErrUnavailable is returned while the breaker refuses submissions.
var ErrUnavailable = errors.New("order submission temporarily unavailable")

// BreakerConfig controls when order submission stops calling its backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive backend failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

var _ Placer = (*BreakerPlacer)(nil)

// BreakerPlacer wraps a Placer with a circuit breaker. It fails fast while
// the backend is known to be failing and never retries on its own. Business
// rejections do not count as backend failures.
type BreakerPlacer struct {
	next Placer
	cb   *gobreaker.CircuitBreaker[*Confirmation]
}

// NewBreakerPlacer wraps next.
func NewBreakerPlacer(next Placer, cfg BreakerConfig) *BreakerPlacer {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	return &BreakerPlacer{
		next: next,
		cb: gobreaker.NewCircuitBreaker[*Confirmation](gobreaker.Settings{
			Name:    "order-submission",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isRejection(err)
			},
		}),
	}
}

// PlaceOrder forwards to the wrapped Placer unless the breaker is open.
func (b *BreakerPlacer) PlaceOrder(ctx context.Context, o *Order) (*Confirmation, error) {
	conf, err := b.cb.Execute(func() (*Confirmation, error) {
		return b.next.PlaceOrder(ctx, o)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		zctx.From(ctx).Warn("Order submission refused by breaker",
			zap.String("state", b.cb.State().String()),
		)
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return conf, err
}

// isRejection reports whether err is a business outcome rather than a backend fault.
func isRejection(err error) bool {
	var (
		pnf *ProductNotFoundError
		iq  *InvalidQuantityError
	)
	return errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, stock.ErrInsufficientStock) ||
		errors.Is(err, product.ErrNotFound) ||
		errors.As(err, &pnf) ||
		errors.As(err, &iq)
}
