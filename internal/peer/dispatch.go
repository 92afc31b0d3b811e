// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package peer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nullmodem/serialsync/internal/compressor"
	"github.com/nullmodem/serialsync/internal/eventbus"
	"github.com/nullmodem/serialsync/internal/fbt"
	"github.com/nullmodem/serialsync/internal/lineproto"
	"github.com/nullmodem/serialsync/internal/manifest"
	"github.com/nullmodem/serialsync/internal/osutil"
)

// dispatch routes one parsed inbound command, implementing the table in
// spec.md §4.6. Runs on the reader-loop goroutine; any handler that
// drives FBT blocks the loop for the duration of that transfer, which is
// exactly the "single reader of the wire" invariant spec.md §2 requires.
func (c *Controller) dispatch(msg lineproto.Message) {
	switch msg.Command {
	case lineproto.ManifestReq:
		c.handleManifestReq(msg)
	case lineproto.ManifestData:
		// Consumed only within a sender's sync-session code path, which
		// reads it directly off the wire rather than through dispatch.
	case lineproto.FileReq:
		c.handleFileReq(msg)
	case lineproto.FileData:
		c.handleFileData(msg)
	case lineproto.FileDelete:
		c.handleFileDelete(msg)
	case lineproto.Mkdir:
		c.handleMkdir(msg)
	case lineproto.Rmdir:
		c.handleRmdir(msg)
	case lineproto.SyncComplete:
		c.handleSyncComplete()
	case lineproto.DirectionChange:
		c.handleDirectionChange(msg)
	case lineproto.RoleNegotiate:
		c.handleRoleNegotiate(msg)
	case lineproto.Ack:
		// Consumed by whichever code path is waiting for it directly.
	case lineproto.ErrorCmd:
		c.handleRemoteError(msg)
	case lineproto.Heartbeat:
		c.handleHeartbeat()
	case lineproto.HeartbeatAck:
		c.handleHeartbeatAck()
	case lineproto.SharedText:
		c.handleSharedText(msg)
	default:
		c.log.Debugln("reader loop: unknown command", msg.Command)
	}
}

func (c *Controller) handleManifestReq(msg lineproto.Message) {
	respectGitignore, quickMode := c.cfg.RespectGitignore, c.cfg.QuickMode
	if len(msg.Params) >= 2 {
		if v, err := strconv.ParseBool(msg.Params[0]); err == nil {
			respectGitignore = v
		}
		if v, err := strconv.ParseBool(msg.Params[1]); err == nil {
			quickMode = v
		}
	}

	m, err := c.scanner.Generate(c.cfg.Root, manifest.Options{RespectGitignore: respectGitignore, QuickMode: quickMode})
	if err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}
	compressed, err := compressor.Compress(raw)
	if err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}

	if err := lineproto.Send(c.link, lineproto.ManifestData, strconv.Itoa(len(compressed))); err != nil {
		c.log.Warnf("manifest req: %v", err)
		return
	}
	if err := lineproto.ExpectAck(c.link, readLineTimeout); err != nil {
		c.log.Warnf("manifest req: %v", err)
		return
	}

	c.state.SetFBTActive(true)
	err = fbt.Send(c.link, compressed)
	c.state.SetFBTActive(false)
	if err != nil {
		c.bus.Post(eventbus.Error, err)
	}
}

func (c *Controller) handleFileReq(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		return
	}
	data, err := os.ReadFile(filepath.Join(c.cfg.Root, msg.Params[0]))
	if err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}
	c.state.SetFBTActive(true)
	err = fbt.Send(c.link, data)
	c.state.SetFBTActive(false)
	if err != nil {
		c.bus.Post(eventbus.Error, err)
	}
}

func (c *Controller) handleFileData(msg lineproto.Message) {
	if len(msg.Params) != 4 {
		return
	}
	path := msg.Params[0]
	compressedFlag, _ := strconv.ParseBool(msg.Params[2])
	modMillis, _ := strconv.ParseInt(msg.Params[3], 10, 64)

	if err := lineproto.Send(c.link, lineproto.Ack); err != nil {
		c.log.Warnf("file data: %v", err)
		return
	}

	c.state.SetFBTActive(true)
	data, err := fbt.Receive(c.link)
	c.state.SetFBTActive(false)
	if err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}

	if compressedFlag {
		data, err = compressor.Decompress(data)
		if err != nil {
			c.bus.Post(eventbus.Error, err)
			return
		}
	}

	full := filepath.Join(c.cfg.Root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}
	if err := osutil.WriteFile(full, data, 0o644); err != nil {
		c.bus.Post(eventbus.Error, err)
		return
	}
	modTime := time.UnixMilli(modMillis)
	os.Chtimes(full, modTime, modTime)
	c.bus.Post(eventbus.Progress, path)
}

// pruneEmptyParents removes dir and any now-empty ancestors, stopping at
// root, mirroring the deepest-first empty-directory cleanup the Sync
// Session performs for its own deletions.
func pruneEmptyParents(root, dir string) {
	for {
		if dir == root || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (c *Controller) handleFileDelete(msg lineproto.Message) {
	if len(msg.Params) < 1 || msg.Params[0] == "" {
		return
	}
	full := filepath.Join(c.cfg.Root, msg.Params[0])
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		c.bus.Post(eventbus.Error, err)
		return
	}
	pruneEmptyParents(c.cfg.Root, filepath.Dir(full))
}

func (c *Controller) handleMkdir(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		return
	}
	if err := os.MkdirAll(filepath.Join(c.cfg.Root, msg.Params[0]), 0o755); err != nil {
		c.bus.Post(eventbus.Error, err)
	}
}

func (c *Controller) handleRmdir(msg lineproto.Message) {
	if len(msg.Params) < 1 || msg.Params[0] == "" {
		// An empty target would join down to c.cfg.Root itself; never
		// let RMDIR recursively delete the whole sync root.
		return
	}
	if err := os.RemoveAll(filepath.Join(c.cfg.Root, msg.Params[0])); err != nil {
		c.bus.Post(eventbus.Error, err)
	}
}

func (c *Controller) handleSyncComplete() {
	c.state.SetSyncing(false)
	c.bus.Post(eventbus.SyncComplete, nil)
	c.sharedText.FlushIfIdle()
}

func (c *Controller) handleDirectionChange(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		return
	}
	remoteIsSender, _ := strconv.ParseBool(msg.Params[0])
	c.state.SetIsSender(!remoteIsSender)
	c.bus.Post(eventbus.Direction, c.state.IsSender())
}

func (c *Controller) handleRoleNegotiate(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		return
	}
	if c.state.RoleNegotiated() {
		return
	}
	remotePriority, err := strconv.ParseInt(msg.Params[0], 10, 64)
	if err != nil {
		return
	}
	c.state.SetIsSender(c.state.LocalPriority() > remotePriority)
	c.state.SetRoleNegotiated(true)
	c.negotiateRole()
	c.bus.Post(eventbus.Direction, c.state.IsSender())
}

func (c *Controller) handleHeartbeat() {
	if err := lineproto.Send(c.link, lineproto.HeartbeatAck); err != nil {
		c.log.Warnf("heartbeat ack: %v", err)
	}
	c.onConnectionRestored()
}

func (c *Controller) handleHeartbeatAck() {
	c.state.SetLastHeartbeatReceived(time.Now().UnixMilli())
	c.onConnectionRestored()
}

func (c *Controller) handleRemoteError(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		c.bus.Post(eventbus.Error, "")
		return
	}
	c.bus.Post(eventbus.Error, msg.Params[0])
}

func (c *Controller) handleSharedText(msg lineproto.Message) {
	if len(msg.Params) < 1 {
		return
	}
	if _, err := c.sharedText.ReceiveBase64(msg.Params[0]); err != nil {
		c.bus.Post(eventbus.Error, err)
	}
}
