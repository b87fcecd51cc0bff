// Package retry реализует ограниченный повтор операций с экспоненциальной задержкой
// поверх github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy параметры повторов.
type Policy struct {
	MaxAttempts     int           // Общее число попыток, включая первую
	InitialInterval time.Duration // Задержка перед второй попыткой
	MaxInterval     time.Duration // Верхняя граница задержки
	Multiplier      float64       // Во сколько раз растёт задержка
	// RetryIf решает, стоит ли повторять после ошибки. При nil повторять всегда.
	RetryIf func(err error) bool
}

// DefaultPolicy 7 попыток, задержка 1s, 2s, 4s, 8s, 10s, 10s.
func DefaultPolicy(retryIf func(err error) bool) Policy {
	return Policy{
		MaxAttempts:     7,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		RetryIf:         retryIf,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do выполняет fn, повторяя её по политике. Ошибка, для которой RetryIf вернул false,
// возвращается сразу. После исчерпания попыток возвращается последняя ошибка.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		res, err := fn()
		if err != nil && p.RetryIf != nil && !p.RetryIf(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	return backoff.RetryWithData(op, p.backOff(ctx))
}
