// Package gossip defines the message envelope of the gossip transport: a
// type-length-value frame around raw transaction and milestone bytes.
// The transport itself (peering, connection handling) is an external
// collaborator, the node only sees framed payloads
package gossip

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

type MessageType byte

const (
	MessageTypeTransaction = MessageType(iota + 1)
	MessageTypeMilestone
)

const HeaderSize = 3

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrAdvertisedLength   = errors.New("advertised length does not match payload")
	ErrFrameTooShort      = errors.New("frame shorter than TLV header")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum TLV length")
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeTransaction:
		return "transaction"
	case MessageTypeMilestone:
		return "milestone"
	}
	return "wrongMessageType"
}

// ToBytes frames the payload: type (1 byte), length (big-endian uint16), payload
func ToBytes(msgType MessageType, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(payload))
	}
	ret := make([]byte, 0, HeaderSize+len(payload))
	ret = append(ret, byte(msgType))
	ret = binary.BigEndian.AppendUint16(ret, uint16(len(payload)))
	ret = append(ret, payload...)
	return ret, nil
}

// FromBytes parses a TLV frame and returns the message type and the payload.
// The advertised length must exactly match the remaining bytes
func FromBytes(data []byte) (MessageType, []byte, error) {
	if len(data) < HeaderSize {
		return 0, nil, errors.Wrapf(ErrFrameTooShort, "%d bytes", len(data))
	}
	msgType := MessageType(data[0])
	switch msgType {
	case MessageTypeTransaction, MessageTypeMilestone:
	default:
		return 0, nil, errors.Wrapf(ErrUnknownMessageType, "type id %d", data[0])
	}
	advertised := int(binary.BigEndian.Uint16(data[1:3]))
	payload := data[HeaderSize:]
	if advertised != len(payload) {
		return 0, nil, errors.Wrapf(ErrAdvertisedLength, "type %s: advertised %d, found %d",
			msgType.String(), advertised, len(payload))
	}
	return msgType, payload, nil
}
