package grpclink

import (
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

// TestFrameCodec tests that frames survive the registered gRPC codec
func TestFrameCodec(t *testing.T) {
	in := &frame{
		Kind:     frameData,
		Node:     "node-1",
		Key:      "robot1/Chatter",
		Payload:  []byte{0, 1, 2, 0xff},
		Locators: []string{"tcp/10.0.0.1:7447", "tcp/10.0.0.2:7447"},
	}

	var codec frameCodec
	b, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("Expected no error marshaling, got %v", err)
	}
	out := new(frame)
	if err := codec.Unmarshal(b, out); err != nil {
		t.Fatalf("Expected no error unmarshaling, got %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	if _, err := codec.Marshal("not a frame"); err == nil {
		t.Error("Expected error marshaling a foreign type")
	}
}

// TestFrameUnmarshal_SkipsUnknownFields tests forward compatibility
func TestFrameUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := (&frame{Kind: frameHello, Node: "n"}).marshal()
	b = protowire.AppendTag(b, 42, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	var f frame
	if err := f.unmarshal(b); err != nil {
		t.Fatalf("Expected unknown field to be skipped, got %v", err)
	}
	if f.Node != "n" {
		t.Errorf("Expected node n, got %q", f.Node)
	}
}

// TestFrameUnmarshal_Malformed tests rejection of bad input
func TestFrameUnmarshal_Malformed(t *testing.T) {
	var f frame
	if err := f.unmarshal([]byte{0x0a, 0x05, 'a'}); !errors.Is(err, errMalformedFrame) {
		t.Errorf("Expected errMalformedFrame for truncated bytes, got %v", err)
	}
	if err := f.unmarshal(nil); !errors.Is(err, errMalformedFrame) {
		t.Errorf("Expected errMalformedFrame for missing kind, got %v", err)
	}
}

// TestResolveLocators tests substitution of unspecified hosts
func TestResolveLocators(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: 7446}
	got := resolveLocators([]string{"tcp/0.0.0.0:7447", "tcp/10.0.0.5:7448", "garbage"}, src)
	want := []string{"192.168.1.20:7447", "10.0.0.5:7448"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("locators mismatch (-want +got):\n%s", diff)
	}
}
