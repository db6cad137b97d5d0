package packet

import (
	"bytes"
	"fmt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// Publish is the PUBLISH packet. Duplicate/QoS/Retain live on the struct
// rather than the fixed header flags byte because fixedHeaderFlags derives
// the wire flags from these fields on encode.
type Publish struct {
	Duplicate bool
	QoS       QoS
	Retain    bool

	TopicName        string
	PacketIdentifier uint16
	Properties       *Properties
	Payload          []byte
}

func (p *Publish) Type() Type { return TypePublish }

func decodePublish(r *bytes.Reader, flags byte, version Version) (Packet, error) {
	topicName, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: publish topic name: %v", robustmqerrors.ErrDecodeError, err)
	}

	p := &Publish{
		Duplicate: flags&0x08 != 0,
		QoS:       QoS((flags >> 1) & 0x03),
		Retain:    flags&0x01 != 0,
		TopicName: topicName,
	}

	if p.QoS != QoS0 {
		p.PacketIdentifier, err = readUint16(r)
		if err != nil {
			return nil, fmt.Errorf("%w: publish packet identifier: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	if version == Version5 {
		p.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: publish properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	payload := make([]byte, r.Len())
	if _, err := r.Read(payload); err != nil && r.Len() > 0 {
		return nil, fmt.Errorf("%w: publish payload: %v", robustmqerrors.ErrDecodeError, err)
	}
	p.Payload = payload

	if p.Properties != nil && p.Properties.PayloadFormatIndicator != nil &&
		*p.Properties.PayloadFormatIndicator == 1 && len(p.Payload) == 0 {
		return nil, fmt.Errorf("%w: zero-length payload with payload_format_indicator=1", robustmqerrors.ErrReceivedPacketError)
	}

	return p, nil
}

func (p *Publish) encodeBody(w *bytes.Buffer, version Version) error {
	writeString(w, p.TopicName)
	if p.QoS != QoS0 {
		writeUint16(w, p.PacketIdentifier)
	}
	if version == Version5 {
		w.Write(encodeProperties(p.Properties))
	}
	w.Write(p.Payload)
	return nil
}

// pubAckLike is the shared shape of PUBACK/PUBREC/PUBREL/PUBCOMP: a packet
// identifier plus, in MQTT 5 only and only when a reason code or property
// list is present, a reason code and property list.
type pubAckLike struct {
	PacketIdentifier uint16
	ReasonCode       byte
	Properties       *Properties
}

func decodePubAckLike(r *bytes.Reader, version Version) (pubAckLike, error) {
	var out pubAckLike
	pid, err := readUint16(r)
	if err != nil {
		return out, fmt.Errorf("%w: packet identifier: %v", robustmqerrors.ErrDecodeError, err)
	}
	out.PacketIdentifier = pid

	if version == Version5 && r.Len() > 0 {
		reasonCode, err := readByte(r)
		if err != nil {
			return out, fmt.Errorf("%w: reason code: %v", robustmqerrors.ErrDecodeError, err)
		}
		out.ReasonCode = reasonCode
		if r.Len() > 0 {
			out.Properties, err = decodeProperties(r)
			if err != nil {
				return out, fmt.Errorf("%w: properties: %v", robustmqerrors.ErrDecodeError, err)
			}
		}
	}
	return out, nil
}

func encodePubAckLike(w *bytes.Buffer, version Version, v pubAckLike) {
	writeUint16(w, v.PacketIdentifier)
	if version == Version5 && (v.ReasonCode != 0 || v.Properties != nil) {
		w.WriteByte(v.ReasonCode)
		w.Write(encodeProperties(v.Properties))
	}
}

// PubAck is the PUBACK packet.
type PubAck struct {
	PacketIdentifier uint16
	ReasonCode       byte
	Properties       *Properties
}

func (p *PubAck) Type() Type { return TypePubAck }

func decodePubAck(r *bytes.Reader, version Version) (Packet, error) {
	v, err := decodePubAckLike(r, version)
	if err != nil {
		return nil, err
	}
	return &PubAck{PacketIdentifier: v.PacketIdentifier, ReasonCode: v.ReasonCode, Properties: v.Properties}, nil
}

func (p *PubAck) encodeBody(w *bytes.Buffer, version Version) error {
	encodePubAckLike(w, version, pubAckLike{p.PacketIdentifier, p.ReasonCode, p.Properties})
	return nil
}

// PubRec is the PUBREC packet.
type PubRec struct {
	PacketIdentifier uint16
	ReasonCode       byte
	Properties       *Properties
}

func (p *PubRec) Type() Type { return TypePubRec }

func decodePubRec(r *bytes.Reader, version Version) (Packet, error) {
	v, err := decodePubAckLike(r, version)
	if err != nil {
		return nil, err
	}
	return &PubRec{PacketIdentifier: v.PacketIdentifier, ReasonCode: v.ReasonCode, Properties: v.Properties}, nil
}

func (p *PubRec) encodeBody(w *bytes.Buffer, version Version) error {
	encodePubAckLike(w, version, pubAckLike{p.PacketIdentifier, p.ReasonCode, p.Properties})
	return nil
}

// PubRel is the PUBREL packet.
type PubRel struct {
	PacketIdentifier uint16
	ReasonCode       byte
	Properties       *Properties
}

func (p *PubRel) Type() Type { return TypePubRel }

func decodePubRel(r *bytes.Reader, version Version) (Packet, error) {
	v, err := decodePubAckLike(r, version)
	if err != nil {
		return nil, err
	}
	return &PubRel{PacketIdentifier: v.PacketIdentifier, ReasonCode: v.ReasonCode, Properties: v.Properties}, nil
}

func (p *PubRel) encodeBody(w *bytes.Buffer, version Version) error {
	encodePubAckLike(w, version, pubAckLike{p.PacketIdentifier, p.ReasonCode, p.Properties})
	return nil
}

// PubComp is the PUBCOMP packet.
type PubComp struct {
	PacketIdentifier uint16
	ReasonCode       byte
	Properties       *Properties
}

func (p *PubComp) Type() Type { return TypePubComp }

func decodePubComp(r *bytes.Reader, version Version) (Packet, error) {
	v, err := decodePubAckLike(r, version)
	if err != nil {
		return nil, err
	}
	return &PubComp{PacketIdentifier: v.PacketIdentifier, ReasonCode: v.ReasonCode, Properties: v.Properties}, nil
}

func (p *PubComp) encodeBody(w *bytes.Buffer, version Version) error {
	encodePubAckLike(w, version, pubAckLike{p.PacketIdentifier, p.ReasonCode, p.Properties})
	return nil
}
