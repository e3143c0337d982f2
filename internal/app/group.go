package app

import (
	"context"
	"errors"
	"sync"

	"vehicle-hud/internal/power"
)

// ConsumerGroup runs several consumers as one power.Consumer.
type ConsumerGroup []power.Consumer

// Run starts every member and returns once all of them returned. With no
// members it waits for ctx.
func (g ConsumerGroup) Run(ctx context.Context) error {
	if len(g) == 0 {
		<-ctx.Done()
		return nil
	}

	errs := make([]error, len(g))
	var wg sync.WaitGroup
	for i, c := range g {
		wg.Add(1)
		go func(i int, c power.Consumer) {
			defer wg.Done()
			errs[i] = c.Run(ctx)
		}(i, c)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (g ConsumerGroup) Blank() error {
	var errs []error
	for _, c := range g {
		if err := c.Blank(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
