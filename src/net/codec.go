package net

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

const (
	// headerSize is the tag byte plus the 4 byte big-endian payload length.
	headerSize = 5

	// MaxFrameSize bounds the payload of a single frame.
	MaxFrameSize = 32 << 20
)

var msgpackHandle = func() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	return mh
}()

// Encode serializes a message into a frame: the tag byte, the payload length
// and the msgpack payload.
func Encode(msg Message) ([]byte, error) {
	if _, ok := newMessage(msg.Type()); !ok {
		return nil, &MalformedMessageError{Reason: "unknown message type " + msg.Type().String()}
	}

	buf := bytes.NewBuffer(make([]byte, headerSize))
	enc := codec.NewEncoder(buf, msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return nil, &MalformedMessageError{Reason: "encoding payload", Err: err}
	}

	frame := buf.Bytes()
	size := len(frame) - headerSize
	if size > MaxFrameSize {
		return nil, &MalformedMessageError{Reason: "payload too large"}
	}

	frame[0] = byte(msg.Type())
	binary.BigEndian.PutUint32(frame[1:headerSize], uint32(size))

	return frame, nil
}

// Decode is the inverse of Encode. It expects exactly one frame.
func Decode(data []byte) (Message, error) {
	if len(data) < headerSize {
		return nil, &MalformedMessageError{Reason: "truncated header"}
	}

	msg, size, err := parseHeader(data[:headerSize])
	if err != nil {
		return nil, &MalformedMessageError{Reason: err.Reason}
	}

	payload := data[headerSize:]
	if uint32(len(payload)) != size {
		return nil, &MalformedMessageError{Reason: "payload length mismatch"}
	}

	if err := decodePayload(payload, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// WriteMessage writes a single frame to w.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads a single frame from r. It returns io.EOF if the stream
// ends cleanly before a new frame, and a *FramingError if it ends or breaks
// inside one.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FramingError{Reason: "reading header", Err: err}
	}

	msg, size, ferr := parseHeader(header[:])
	if ferr != nil {
		return nil, ferr
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FramingError{Reason: "reading payload", Err: err}
	}

	if err := decodePayload(payload, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

func parseHeader(header []byte) (Message, uint32, *FramingError) {
	tag := MessageType(header[0])
	msg, ok := newMessage(tag)
	if !ok {
		return nil, 0, &FramingError{Reason: "unknown message type " + tag.String()}
	}

	size := binary.BigEndian.Uint32(header[1:headerSize])
	if size > MaxFrameSize {
		return nil, 0, &FramingError{Reason: "frame too large"}
	}

	return msg, size, nil
}

func decodePayload(payload []byte, msg Message) error {
	dec := codec.NewDecoderBytes(payload, msgpackHandle)
	if err := dec.Decode(msg); err != nil {
		return &MalformedMessageError{Reason: "decoding " + msg.Type().String(), Err: err}
	}
	if n := dec.NumBytesRead(); n != len(payload) {
		return &MalformedMessageError{Reason: fmt.Sprintf("%d trailing bytes after %s", len(payload)-n, msg.Type())}
	}
	return nil
}
