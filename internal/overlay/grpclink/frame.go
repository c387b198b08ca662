package grpclink

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the gRPC content-subtype of link frames
const codecName = "overlayframe"

type frameKind uint8

const (
	frameHello frameKind = iota + 1
	frameDeclareSub
	frameUndeclareSub
	frameDeclarePub
	frameUndeclarePub
	frameData
)

func (k frameKind) String() string {
	switch k {
	case frameHello:
		return "hello"
	case frameDeclareSub:
		return "declare-sub"
	case frameUndeclareSub:
		return "undeclare-sub"
	case frameDeclarePub:
		return "declare-pub"
	case frameUndeclarePub:
		return "undeclare-pub"
	case frameData:
		return "data"
	default:
		return "unknown"
	}
}

// frame is the single message type exchanged on a link and in scouting
// datagrams. Field numbers:
//
//	1 kind      varint
//	2 node      bytes
//	3 key       bytes
//	4 payload   bytes
//	5 locators  repeated bytes
type frame struct {
	Kind     frameKind
	Node     string
	Key      string
	Payload  []byte
	Locators []string
}

const (
	fieldKind     protowire.Number = 1
	fieldNode     protowire.Number = 2
	fieldKey      protowire.Number = 3
	fieldPayload  protowire.Number = 4
	fieldLocators protowire.Number = 5
)

var errMalformedFrame = errors.New("malformed frame")

func (f *frame) marshal() []byte {
	size := 2 + len(f.Node) + len(f.Key) + len(f.Payload) + 16
	for _, l := range f.Locators {
		size += len(l) + 2
	}
	b := make([]byte, 0, size)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if f.Node != "" {
		b = protowire.AppendTag(b, fieldNode, protowire.BytesType)
		b = protowire.AppendString(b, f.Node)
	}
	if f.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, f.Key)
	}
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	for _, l := range f.Locators {
		b = protowire.AppendTag(b, fieldLocators, protowire.BytesType)
		b = protowire.AppendString(b, l)
	}
	return b
}

func (f *frame) unmarshal(b []byte) error {
	*f = frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errMalformedFrame, protowire.ParseError(n))
			}
			f.Kind = frameKind(v)
			b = b[n:]
		case typ == protowire.BytesType && num >= fieldNode && num <= fieldLocators:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errMalformedFrame, protowire.ParseError(n))
			}
			switch num {
			case fieldNode:
				f.Node = string(v)
			case fieldKey:
				f.Key = string(v)
			case fieldPayload:
				f.Payload = append([]byte(nil), v...)
			case fieldLocators:
				f.Locators = append(f.Locators, string(v))
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errMalformedFrame, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if f.Kind < frameHello || f.Kind > frameData {
		return fmt.Errorf("%w: kind %d", errMalformedFrame, f.Kind)
	}
	return nil
}

// frameCodec lets gRPC carry frames without generated message types.
type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("frame codec cannot marshal %T", v)
	}
	return f.marshal(), nil
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("frame codec cannot unmarshal into %T", v)
	}
	return f.unmarshal(data)
}

func (frameCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(frameCodec{})
}
