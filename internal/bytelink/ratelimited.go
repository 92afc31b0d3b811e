// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
// All rights reserved. Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bytelink

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a ByteLink with a token-bucket throughput cap,
// modelling the baud-rate ceiling of a real serial link for tests and
// local development harnesses where PipeLink/TCPLink would otherwise run
// at memory or loopback speed.
type RateLimited struct {
	ByteLink
	limiter *rate.Limiter
}

// NewRateLimited wraps link with a limiter capped at bytesPerSecond,
// bursting up to the same amount.
func NewRateLimited(link ByteLink, bytesPerSecond int) *RateLimited {
	return &RateLimited{ByteLink: link, limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)}
}

func (r *RateLimited) Write(b []byte) error {
	burst := r.limiter.Burst()
	for len(b) > 0 {
		n := len(b)
		if n > burst {
			n = burst
		}
		if err := r.limiter.WaitN(context.Background(), n); err != nil {
			return err
		}
		if err := r.ByteLink.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (r *RateLimited) WriteByte(b byte) error {
	if err := r.limiter.WaitN(context.Background(), 1); err != nil {
		return err
	}
	return r.ByteLink.WriteByte(b)
}
