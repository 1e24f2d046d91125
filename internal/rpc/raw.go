// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpc

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// maxRawMessageSize bounds handshake messages so that garbage on the pipe is
// not mistaken for a huge length.
const maxRawMessageSize = 1 << 20

// sendRawMessage writes msg as JSON prefixed by its 4-byte little-endian size.
func sendRawMessage(w io.Writer, msg interface{}) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return errors.Wrap(err, "writing message size")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "writing message")
	}
	return nil
}

// receiveRawMessage reads a message written by sendRawMessage into msg.
func receiveRawMessage(r io.Reader, msg interface{}) error {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return errors.Wrap(err, "reading message size")
	}
	if size > maxRawMessageSize {
		return errors.Errorf("message size %d exceeds limit %d", size, maxRawMessageSize)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return errors.Wrap(err, "reading message")
	}
	if err := json.Unmarshal(b, msg); err != nil {
		return errors.Wrap(err, "decoding message")
	}
	return nil
}
