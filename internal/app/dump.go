package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"vehicle-hud/internal/can"
	"vehicle-hud/internal/protocol/signals"
)

// Dump prints every decoded frame from src to out until ctx is cancelled or
// the source closes. With all set, frames the decoder ignores are printed
// raw.
func Dump(ctx context.Context, src can.Source, dec *signals.Decoder, out io.Writer, all bool) error {
	for {
		f, ok, err := src.Receive(ctx, 100*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, can.ErrClosed) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		if _, decoded := dec.Decode(f); !decoded {
			if all {
				fmt.Fprintf(out, "%-28s  -\n", f)
			}
			continue
		}

		desc, _ := dec.Lookup(f.ID)
		text := desc.Name
		if desc.Describe != nil {
			text = desc.Describe(dec.Last())
		}
		fmt.Fprintf(out, "%-28s  %s\n", f, text)
	}
}
