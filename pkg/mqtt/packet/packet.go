// Package packet is the hand-written MQTT 3.1.1/4/5 wire codec (spec 4.8):
// fixed header, variable byte integer lengths, and per-type payload
// encode/decode, built so that decode(encode(p)) reproduces p bit for bit
// across every supported packet type and protocol version.
package packet

import (
	"bytes"
	"fmt"
	"io"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// Version is the negotiated MQTT protocol version.
type Version byte

const (
	Version311 Version = 4
	Version5   Version = 5
)

// Type is the MQTT control packet type (fixed header bits 7-4).
type Type byte

const (
	TypeConnect     Type = 1
	TypeConnAck     Type = 2
	TypePublish     Type = 3
	TypePubAck      Type = 4
	TypePubRec      Type = 5
	TypePubRel      Type = 6
	TypePubComp     Type = 7
	TypeSubscribe   Type = 8
	TypeSubAck      Type = 9
	TypeUnsubscribe Type = 10
	TypeUnsubAck    Type = 11
	TypePingReq     Type = 12
	TypePingResp    Type = 13
	TypeDisconnect  Type = 14
	TypeAuth        Type = 15
)

// QoS is the MQTT quality-of-service level.
type QoS byte

const (
	QoS0 QoS = 0
	QoS1 QoS = 1
	QoS2 QoS = 2
)

// Packet is implemented by every decoded MQTT control packet.
type Packet interface {
	Type() Type
	encodeBody(w *bytes.Buffer, version Version) error
}

// Decode reads exactly one framed MQTT packet from r for the given
// protocol version. It returns io.EOF only when r is exhausted before any
// bytes of a new packet are read.
func Decode(r io.Reader, version Version) (Packet, error) {
	firstByte := make([]byte, 1)
	if _, err := io.ReadFull(r, firstByte); err != nil {
		return nil, err
	}
	packetType := Type(firstByte[0] >> 4)
	flags := firstByte[0] & 0x0f

	remaining, err := decodeVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("%w: remaining length: %v", robustmqerrors.ErrDecodeError, err)
	}

	body := make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("%w: packet body: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	return decodeBody(packetType, flags, body, version)
}

func decodeBody(packetType Type, flags byte, body []byte, version Version) (Packet, error) {
	br := bytes.NewReader(body)
	switch packetType {
	case TypeConnect:
		return decodeConnect(br, version)
	case TypeConnAck:
		return decodeConnAck(br, version)
	case TypePublish:
		return decodePublish(br, flags, version)
	case TypePubAck:
		return decodePubAck(br, version)
	case TypePubRec:
		return decodePubRec(br, version)
	case TypePubRel:
		return decodePubRel(br, version)
	case TypePubComp:
		return decodePubComp(br, version)
	case TypeSubscribe:
		return decodeSubscribe(br, version)
	case TypeSubAck:
		return decodeSubAck(br, version)
	case TypeUnsubscribe:
		return decodeUnsubscribe(br, version)
	case TypeUnsubAck:
		return decodeUnsubAck(br, version)
	case TypePingReq:
		return PingReq{}, nil
	case TypePingResp:
		return PingResp{}, nil
	case TypeDisconnect:
		return decodeDisconnect(br, version)
	case TypeAuth:
		return decodeAuth(br, version)
	default:
		return nil, fmt.Errorf("%w: unknown packet type %d", robustmqerrors.ErrReceivedPacketError, packetType)
	}
}

// Encode serializes p into its fixed-header-framed wire form for version.
func Encode(p Packet, version Version) ([]byte, error) {
	var body bytes.Buffer
	if err := p.encodeBody(&body, version); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteByte(byte(p.Type())<<4 | fixedHeaderFlags(p))
	out.Write(encodeVarInt(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// fixedHeaderFlags returns the packet-type-specific low nibble of the
// first fixed-header byte. Only PUBLISH and PUBREL/SUBSCRIBE/UNSUBSCRIBE
// carry non-zero reserved flags.
func fixedHeaderFlags(p Packet) byte {
	switch v := p.(type) {
	case *Publish:
		var flags byte
		if v.Duplicate {
			flags |= 0x08
		}
		flags |= byte(v.QoS) << 1
		if v.Retain {
			flags |= 0x01
		}
		return flags
	case *PubRel:
		return 0x02
	case *Subscribe:
		return 0x02
	case *Unsubscribe:
		return 0x02
	default:
		return 0x00
	}
}
