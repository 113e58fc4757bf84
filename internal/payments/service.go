// Package payments is the boundary to the external payment gateway. It
// consumes webhook-originated events and applies the matching payment-status
// transitions; gateway logic itself lives outside this system.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shoply/orders/internal/fulfillment"
	kafkax "github.com/shoply/orders/internal/kafka"
	"github.com/shoply/orders/internal/orders"
	"github.com/shoply/orders/internal/redisx"
)

type Service struct {
	Fulfillment *fulfillment.Service
	Redis       *redis.Client
	ServiceName string
	Log         zerolog.Logger
}

// HandleEvent is the consumer handler for payment.authorized and
// payment.failed. Returning nil commits the offset.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var next orders.PaymentStatus
	switch env.EventType {
	case orders.EventPaymentAuthorized:
		next = orders.PaymentPaid
	case orders.EventPaymentFailed:
		next = orders.PaymentFailed
	default:
		return nil // not ours
	}

	// dedup via event_id: webhook relays redeliver
	var dkey string
	if s.Redis != nil {
		dkey = fmt.Sprintf(redisx.KeyDedup, "payments", env.EventID)
		if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
			return nil
		}
	}

	orderID, err := orderIDFrom(env)
	if err != nil {
		s.Log.Error().Err(err).Str("event_id", env.EventID).Msg("bad payment event payload")
		return nil // unprocessable, do not retry
	}

	if _, err := s.Fulfillment.UpdatePaymentStatus(ctx, orderID, next); err != nil {
		switch {
		case errors.Is(err, orders.ErrInvalidTransition):
			// already applied or out of order, safe to commit
			s.Log.Warn().Str("order_id", orderID).Str("next", string(next)).Msg("payment transition skipped")
			s.markProcessed(ctx, dkey)
			return nil
		case errors.Is(err, orders.ErrNotFound):
			s.Log.Warn().Str("order_id", orderID).Msg("payment event for unknown order")
			s.markProcessed(ctx, dkey)
			return nil
		default:
			// transient failure: leave the dedup key unset so a redelivery
			// gets another attempt at applying the transition
			return fmt.Errorf("apply payment status: %w", err)
		}
	}
	s.markProcessed(ctx, dkey)
	return nil
}

func (s *Service) markProcessed(ctx context.Context, dkey string) {
	if dkey == "" {
		return
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}

func orderIDFrom(env orders.Envelope) (string, error) {
	switch env.EventType {
	case orders.EventPaymentAuthorized:
		p, err := kafkax.UnwrapPayload[orders.PaymentAuthorizedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return p.OrderID, nil
	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return p.OrderID, nil
	}
	return "", fmt.Errorf("unexpected event type %s", env.EventType)
}
