// Package protocol implements the wire format spoken between the server and
// the game clients: UTF-8 JSON objects delimited by a single terminator byte.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Terminator delimits packets on the wire. 0x1C can never legally appear
// inside the UTF-8 JSON text produced by the encoder, which makes it safe
// to split on without escaping.
const Terminator byte = 0x1C

// MaxBufferSize is the largest number of unterminated bytes a connection may
// accumulate before it is considered hostile and dropped.
const MaxBufferSize = 16384

// ErrBufferLimit is returned by Buffer.Append when a peer exceeds
// MaxBufferSize without sending a terminator.
var ErrBufferLimit = errors.New("receive buffer size limit exceeded")

// Encode serializes v and appends the packet terminator.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding packet: %w", err)
	}
	return append(data, Terminator), nil
}

// Buffer reassembles packets from a TCP stream. Reads may be split or
// coalesced arbitrarily by the transport; Append accumulates raw bytes and
// Next pops complete packets in arrival order.
type Buffer struct {
	data []byte
}

// Append adds raw bytes received from the socket to the buffer.
func (b *Buffer) Append(data []byte) error {
	b.data = append(b.data, data...)
	if len(b.data) > MaxBufferSize {
		return ErrBufferLimit
	}
	return nil
}

// Next returns the payload of the next complete packet, without its
// terminator, or false if no complete packet is buffered.
func (b *Buffer) Next() ([]byte, bool) {
	i := bytes.IndexByte(b.data, Terminator)
	if i < 0 {
		return nil, false
	}
	packet := b.data[:i]
	b.data = b.data[i+1:]
	return packet, true
}

// Len returns the number of buffered bytes not yet consumed.
func (b *Buffer) Len() int {
	return len(b.data)
}
