package weather

import (
	"context"
	"errors"
	"fmt"
)

// firstSuccess calls fn for each provider in order and returns the first
// successful value together with the provider's name. When every provider
// fails, the joined errors are returned.
func firstSuccess[T any](ctx context.Context, providers []Provider, fn func(context.Context, Provider) (T, error)) (T, string, error) {
	var zero T
	if len(providers) == 0 {
		return zero, "", ErrUnsupported
	}

	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := fn(ctx, p)
		if err == nil {
			return v, p.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return zero, "", errors.Join(errs...)
}
