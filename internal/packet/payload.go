package packet

// Typed payloads inside the embedded envelope. Layout, big-endian:
//
//	type(1) flags(1) idLen(1) messageID(idLen) rest
//
// rest is UTF-8 message text for TypePrivateMessage and empty for
// acknowledgements. Addressing never appears in the payload; the
// outer envelope's recipient field carries it.

type Type byte

const (
	TypePrivateMessage Type = 0x01
	TypeDeliveryAck    Type = 0x02
	TypeReadAck        Type = 0x03
)

const maxMessageIDLen = 255

type Payload struct {
	Type      Type
	MessageID string
	Text      string
}

// EncodePayload serializes a typed payload. The bool is false when
// the payload cannot be represented (oversized or empty message id,
// unknown type).
func EncodePayload(p Payload) ([]byte, bool) {
	if p.MessageID == "" || len(p.MessageID) > maxMessageIDLen {
		return nil, false
	}
	switch p.Type {
	case TypePrivateMessage, TypeDeliveryAck, TypeReadAck:
	default:
		return nil, false
	}
	out := make([]byte, 0, 3+len(p.MessageID)+len(p.Text))
	out = append(out, byte(p.Type), 0x00, byte(len(p.MessageID)))
	out = append(out, p.MessageID...)
	if p.Type == TypePrivateMessage {
		out = append(out, p.Text...)
	}
	return out, true
}

// DecodePayload parses a typed payload with strict bounds checks.
func DecodePayload(b []byte) (Payload, bool) {
	if len(b) < 3 {
		return Payload{}, false
	}
	typ := Type(b[0])
	idLen := int(b[2])
	if idLen == 0 || len(b) < 3+idLen {
		return Payload{}, false
	}
	p := Payload{
		Type:      typ,
		MessageID: string(b[3 : 3+idLen]),
	}
	rest := b[3+idLen:]
	switch typ {
	case TypePrivateMessage:
		p.Text = string(rest)
	case TypeDeliveryAck, TypeReadAck:
		if len(rest) != 0 {
			return Payload{}, false
		}
	default:
		return Payload{}, false
	}
	return p, true
}
