// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package fbt

// CRC16 computes CRC-16-CCITT (polynomial 0x1021, initial value 0, no
// final XOR) over data. The retrieval pack carries no standalone CRC-16
// library (searched: sigurn/crc16, howeyc/crc16, snksoft/crc — none
// present), so this tiny, well-defined algorithm is implemented directly
// rather than introducing an unfamiliar dependency for ~15 lines of pure
// arithmetic; see DESIGN.md.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
