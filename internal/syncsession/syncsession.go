// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package syncsession implements the sender-driven Sync Session: one
// synchronization round from manifest exchange through file transfer to
// SYNC_COMPLETE (spec.md §4.5). The receiver side of the same round is
// entirely event-driven through the Peer Controller's dispatch table and
// has no counterpart here.
package syncsession

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nullmodem/serialsync/internal/bytelink"
	"github.com/nullmodem/serialsync/internal/compressor"
	"github.com/nullmodem/serialsync/internal/connstate"
	"github.com/nullmodem/serialsync/internal/eventbus"
	"github.com/nullmodem/serialsync/internal/fbt"
	"github.com/nullmodem/serialsync/internal/lineproto"
	"github.com/nullmodem/serialsync/internal/manifest"
	"github.com/nullmodem/serialsync/internal/util"
)

const (
	ackTimeout = 10 * time.Second
	// fileSendRetries is the whole-file retry budget on top of FBT's own
	// internal per-block retries (spec.md §4.5 step 5).
	fileSendRetries = 3
	retryPause      = 200 * time.Millisecond

	// progressThreshold caps Progress event emission on a fast local
	// link so a slow GUI subscriber isn't flooded faster than it can
	// redraw (spec.md §4.7).
	progressThreshold = 1 << 20 // 1 MiB/s
)

// Options configures one sync round, mirroring the manifest flags the
// sender must propagate so both sides compare under the same criterion
// (spec.md §9's quick-mode commutativity note).
type Options struct {
	Root             string
	RespectGitignore bool
	QuickMode        bool
	Strict           bool
	PersistManifest  string
	PriorManifest    string
}

// Session runs exactly one sync round over link, driving the wire as the
// sender. The local directory being synced is Options.Root, passed to Run.
type Session struct {
	link    bytelink.ByteLink
	state   *connstate.State
	bus     *eventbus.Bus
	scanner *manifest.Scanner

	// progress is consulted before each per-file Progress event. It keeps
	// a throughput history per path and suppresses an update only when
	// that path already has history above progressThreshold; each path is
	// sent at most once per round, so within one round every sent file's
	// Progress event is posted.
	progress *util.ProgressSuppressor

	// ID correlates this round's SyncStarted/SyncComplete event pair and
	// any log lines emitted during Run, across an operator's log output.
	ID uuid.UUID
}

// New constructs a Session. scanner may be shared across rounds to reuse
// its warm manifest cache.
func New(link bytelink.ByteLink, state *connstate.State, bus *eventbus.Bus, scanner *manifest.Scanner) *Session {
	if scanner == nil {
		scanner = manifest.NewScanner()
	}
	return &Session{
		link:     link,
		state:    state,
		bus:      bus,
		scanner:  scanner,
		progress: util.NewProgressSuppressor(progressThreshold),
		ID:       uuid.New(),
	}
}

// Run executes the nine steps of spec.md §4.5 and returns the first
// unrecoverable error, if any. Preconditions (is_sender, connection_alive,
// no session already in flight) are the caller's responsibility to check
// before calling Run — this mirrors the controller owning ConnectionState
// exclusively (spec.md §3).
func (s *Session) Run(opts Options) error {
	s.bus.Post(eventbus.SyncStarted, s.ID)
	s.state.SetSyncing(true)
	defer s.state.SetSyncing(false)

	local, err := s.scanner.Generate(opts.Root, manifest.Options{
		RespectGitignore:  opts.RespectGitignore,
		QuickMode:         opts.QuickMode,
		PriorManifestPath: opts.PriorManifest,
		PersistPath:       opts.PersistManifest,
	})
	if err != nil {
		s.bus.Post(eventbus.Error, err)
		return errors.Wrap(err, "syncsession: generate local manifest")
	}

	remote, err := s.requestRemoteManifest(opts)
	if err != nil {
		s.bus.Post(eventbus.Error, err)
		return errors.Wrap(err, "syncsession: fetch remote manifest")
	}

	cs := manifest.Diff(local, remote, opts.Strict)

	for _, rec := range cs.ToSend {
		if err := s.sendFile(opts.Root, rec); err != nil {
			s.bus.Post(eventbus.Error, err)
			return errors.Wrapf(err, "syncsession: send %s", rec.Path)
		}
		if !s.progress.Suppress(rec.Path, rec.Size, time.Now()) {
			s.bus.Post(eventbus.Progress, rec.Path)
		}
	}

	for _, d := range cs.EmptyDirsToCreate {
		if err := lineproto.Send(s.link, lineproto.Mkdir, d); err != nil {
			return errors.Wrap(err, "syncsession: send MKDIR")
		}
	}
	for _, p := range cs.ToDelete {
		if err := lineproto.Send(s.link, lineproto.FileDelete, p); err != nil {
			return errors.Wrap(err, "syncsession: send FILE_DELETE")
		}
	}
	for _, d := range cs.EmptyDirsToDelete {
		if err := lineproto.Send(s.link, lineproto.Rmdir, d); err != nil {
			return errors.Wrap(err, "syncsession: send RMDIR")
		}
	}

	if err := lineproto.Send(s.link, lineproto.SyncComplete); err != nil {
		return errors.Wrap(err, "syncsession: send SYNC_COMPLETE")
	}
	s.bus.Post(eventbus.SyncComplete, s.ID)
	return nil
}

func (s *Session) requestRemoteManifest(opts Options) (*manifest.Manifest, error) {
	if err := lineproto.Send(s.link, lineproto.ManifestReq,
		strconv.FormatBool(opts.RespectGitignore), strconv.FormatBool(opts.QuickMode)); err != nil {
		return nil, err
	}

	msg, ok, err := lineproto.Receive(s.link, ackTimeout)
	if err != nil {
		return nil, err
	}
	if !ok || msg.Command != lineproto.ManifestData || len(msg.Params) < 1 {
		return nil, errors.New("syncsession: expected MANIFEST_DATA")
	}
	size, err := strconv.Atoi(msg.Params[0])
	if err != nil {
		return nil, errors.Wrap(err, "syncsession: bad MANIFEST_DATA size")
	}
	_ = size // informational; FBT frames carry their own length

	if err := lineproto.Send(s.link, lineproto.Ack); err != nil {
		return nil, err
	}

	s.state.SetFBTActive(true)
	compressed, err := fbt.Receive(s.link)
	s.state.SetFBTActive(false)
	if err != nil {
		return nil, errors.Wrap(err, "syncsession: FBT-receive manifest")
	}

	raw, err := compressor.Decompress(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "syncsession: decompress manifest")
	}

	m := manifest.New()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, errors.Wrap(err, "syncsession: parse remote manifest")
	}
	return m, nil
}

func (s *Session) sendFile(root string, rec manifest.FileRecord) error {
	data, err := os.ReadFile(root + string(os.PathSeparator) + rec.Path)
	if err != nil {
		return errors.Wrap(err, "syncsession: read file")
	}
	out, compressed := compressor.CompressIfBeneficial(rec.Path, data)

	var lastErr error
	for attempt := 0; attempt < fileSendRetries; attempt++ {
		if attempt > 0 {
			s.link.ClearInput()
			time.Sleep(retryPause)
		}
		if err := lineproto.Send(s.link, lineproto.FileData,
			rec.Path, fmt.Sprint(len(out)), strconv.FormatBool(compressed), fmt.Sprint(rec.ModifiedTime)); err != nil {
			lastErr = err
			continue
		}
		if err := lineproto.ExpectAck(s.link, ackTimeout); err != nil {
			lastErr = err
			continue
		}

		s.state.SetFBTActive(true)
		err := fbt.Send(s.link, out)
		s.state.SetFBTActive(false)
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return errors.Wrap(lastErr, "syncsession: file send exhausted retries")
}
