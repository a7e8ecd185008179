package packet

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("payload"),
		{0x00},
		{0xff, 0xfe, 0xfd},
		bytes.Repeat([]byte{0xab}, 300),
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
	}
	for _, payload := range cases {
		encoded := Encode(payload)
		if !strings.HasPrefix(encoded, Marker) {
			t.Fatalf("missing marker in %q", encoded)
		}
		if strings.Contains(encoded, "=") {
			t.Fatalf("padding leaked into %q", encoded)
		}
		got, ok := Decode(encoded)
		if !ok {
			t.Fatalf("decode rejected %q", encoded)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch: got %x want %x", got, payload)
		}
	}
}

func TestDecodeRejectsForeignContent(t *testing.T) {
	cases := []string{
		"",
		"just a chat message",
		"bitchat2:AAAA",
		"bitchat1:%%%",
		"bitchat1:AA==",
		strings.ToUpper(Marker) + "AAAA",
	}
	for _, content := range cases {
		if _, ok := Decode(content); ok {
			t.Fatalf("accepted %q", content)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	cases := []Payload{
		{Type: TypePrivateMessage, MessageID: "m-1", Text: "hello there"},
		{Type: TypePrivateMessage, MessageID: "m-2", Text: ""},
		{Type: TypeDeliveryAck, MessageID: "0123456789abcdef"},
		{Type: TypeReadAck, MessageID: "m-3"},
	}
	for _, p := range cases {
		b, ok := EncodePayload(p)
		if !ok {
			t.Fatalf("encode rejected %+v", p)
		}
		got, ok := DecodePayload(b)
		if !ok {
			t.Fatalf("decode rejected %x", b)
		}
		if got != p {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
		}
	}
}

func TestEncodePayloadRejectsInvalid(t *testing.T) {
	cases := []Payload{
		{Type: TypePrivateMessage, MessageID: ""},
		{Type: TypeDeliveryAck, MessageID: strings.Repeat("x", 256)},
		{Type: Type(0x7f), MessageID: "m-1"},
	}
	for _, p := range cases {
		if _, ok := EncodePayload(p); ok {
			t.Fatalf("accepted %+v", p)
		}
	}
}

func TestDecodePayloadBounds(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{byte(TypePrivateMessage)},
		{byte(TypePrivateMessage), 0x00},
		{byte(TypePrivateMessage), 0x00, 0x00},        // zero id length
		{byte(TypePrivateMessage), 0x00, 0x05, 'a'},   // id truncated
		{byte(TypeDeliveryAck), 0x00, 0x01, 'a', 'x'}, // trailing bytes on ack
		{0x7f, 0x00, 0x01, 'a'},                       // unknown type
	}
	for _, b := range cases {
		if _, ok := DecodePayload(b); ok {
			t.Fatalf("accepted %x", b)
		}
	}
}
