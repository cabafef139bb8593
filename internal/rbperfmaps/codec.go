package rbperfmaps

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DecodeRubyStack decodes a raw ring/perf buffer record into a RubyStack.
// Every field is fixed-width and the kernel always writes little-endian, so
// a single binary.Read suffices — the same approach the nerrf tracer's
// ring-buffer consumer uses to turn a RawSample into its event struct.
func DecodeRubyStack(raw []byte) (RubyStack, error) {
	var s RubyStack
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &s); err != nil {
		return RubyStack{}, fmt.Errorf("decode RubyStack: %w", err)
	}
	return s, nil
}

// EncodeRubyStack is the inverse of DecodeRubyStack, used by tests that
// synthesize raw kernel records.
func EncodeRubyStack(s RubyStack) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, s); err != nil {
		return nil, fmt.Errorf("encode RubyStack: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRubyFrame decodes a raw id_to_stack value into a RubyFrame.
func DecodeRubyFrame(raw []byte) (RubyFrame, error) {
	var f RubyFrame
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &f); err != nil {
		return RubyFrame{}, fmt.Errorf("decode RubyFrame: %w", err)
	}
	return f, nil
}

// EncodeRubyFrame is the inverse of DecodeRubyFrame.
func EncodeRubyFrame(f RubyFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
		return nil, fmt.Errorf("encode RubyFrame: %w", err)
	}
	return buf.Bytes(), nil
}
