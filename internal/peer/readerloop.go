// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package peer

import (
	"context"
	"time"

	"github.com/nullmodem/serialsync/internal/bytelink"
	"github.com/nullmodem/serialsync/internal/lineproto"
)

const (
	fbtActivePollInterval = 50 * time.Millisecond
	idlePollInterval      = 20 * time.Millisecond
)

// readerLoopService consumes line-protocol commands and dispatches them
// (spec.md §4.6, §5 logical activity 1). It sleeps briefly rather than
// reading while fbt_active is set, since the wire is committed to a
// Framed Block Transfer during that window and the reader must not
// compete for bytes.
type readerLoopService struct{ c *Controller }

func (r readerLoopService) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !r.c.state.Running() {
			return nil
		}
		if r.c.state.FBTActive() {
			time.Sleep(fbtActivePollInterval)
			continue
		}
		if r.c.link.Available() == 0 {
			time.Sleep(idlePollInterval)
			continue
		}

		msg, ok, err := lineproto.Receive(r.c.link, readLineTimeout)
		if err != nil {
			if err == bytelink.ErrTimeout {
				continue
			}
			r.c.log.Warnf("reader loop: %v", err)
			continue
		}
		if !ok {
			// Malformed bracketing: silently discarded per spec.md §4.2,
			// but worth a debug line per spec.md §9's recommendation for
			// unknown commands.
			r.c.log.Debugln("reader loop: discarded malformed line")
			continue
		}
		r.c.dispatch(msg)
	}
}
