package packet

import (
	"bytes"
	"fmt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// Subscribe options byte bits, MQTT 5 section 3.8.3.1. MQTT 3.1.1 carries
// only the QoS bits (0-1) in this byte.
const (
	subOptNoLocal         = 0x04
	subOptRetainAsPublish = 0x08
	subOptRetainHandling  = 0x30
)

// SubscriptionOptions is one (topic filter, options) entry within SUBSCRIBE.
type SubscriptionOptions struct {
	QoS               QoS
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

func decodeSubOptions(b byte) SubscriptionOptions {
	return SubscriptionOptions{
		QoS:               QoS(b & 0x03),
		NoLocal:           b&subOptNoLocal != 0,
		RetainAsPublished: b&subOptRetainAsPublish != 0,
		RetainHandling:    (b & subOptRetainHandling) >> 4,
	}
}

func (o SubscriptionOptions) encode() byte {
	b := byte(o.QoS) & 0x03
	if o.NoLocal {
		b |= subOptNoLocal
	}
	if o.RetainAsPublished {
		b |= subOptRetainAsPublish
	}
	b |= (o.RetainHandling << 4) & subOptRetainHandling
	return b
}

// SubscribeFilter is one topic filter entry in a SUBSCRIBE packet.
type SubscribeFilter struct {
	TopicFilter string
	Options     SubscriptionOptions
}

// Subscribe is the SUBSCRIBE packet.
type Subscribe struct {
	PacketIdentifier uint16
	Properties       *Properties
	Filters          []SubscribeFilter
}

func (s *Subscribe) Type() Type { return TypeSubscribe }

func decodeSubscribe(r *bytes.Reader, version Version) (Packet, error) {
	pid, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe packet identifier: %v", robustmqerrors.ErrDecodeError, err)
	}
	s := &Subscribe{PacketIdentifier: pid}

	if version == Version5 {
		s.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: subscribe properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	for r.Len() > 0 {
		topicFilter, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: subscribe topic filter: %v", robustmqerrors.ErrDecodeError, err)
		}
		optByte, err := readByte(r)
		if err != nil {
			return nil, fmt.Errorf("%w: subscribe options: %v", robustmqerrors.ErrDecodeError, err)
		}
		s.Filters = append(s.Filters, SubscribeFilter{TopicFilter: topicFilter, Options: decodeSubOptions(optByte)})
	}

	return s, nil
}

func (s *Subscribe) encodeBody(w *bytes.Buffer, version Version) error {
	writeUint16(w, s.PacketIdentifier)
	if version == Version5 {
		w.Write(encodeProperties(s.Properties))
	}
	for _, f := range s.Filters {
		writeString(w, f.TopicFilter)
		w.WriteByte(f.Options.encode())
	}
	return nil
}

// SubAck is the SUBACK packet.
type SubAck struct {
	PacketIdentifier uint16
	Properties       *Properties
	ReasonCodes      []byte
}

func (s *SubAck) Type() Type { return TypeSubAck }

func decodeSubAck(r *bytes.Reader, version Version) (Packet, error) {
	pid, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: suback packet identifier: %v", robustmqerrors.ErrDecodeError, err)
	}
	s := &SubAck{PacketIdentifier: pid}

	if version == Version5 {
		s.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: suback properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	s.ReasonCodes = make([]byte, r.Len())
	if _, err := r.Read(s.ReasonCodes); err != nil && r.Len() > 0 {
		return nil, fmt.Errorf("%w: suback reason codes: %v", robustmqerrors.ErrDecodeError, err)
	}
	return s, nil
}

func (s *SubAck) encodeBody(w *bytes.Buffer, version Version) error {
	writeUint16(w, s.PacketIdentifier)
	if version == Version5 {
		w.Write(encodeProperties(s.Properties))
	}
	w.Write(s.ReasonCodes)
	return nil
}

// Unsubscribe is the UNSUBSCRIBE packet.
type Unsubscribe struct {
	PacketIdentifier uint16
	Properties       *Properties
	TopicFilters     []string
}

func (u *Unsubscribe) Type() Type { return TypeUnsubscribe }

func decodeUnsubscribe(r *bytes.Reader, version Version) (Packet, error) {
	pid, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unsubscribe packet identifier: %v", robustmqerrors.ErrDecodeError, err)
	}
	u := &Unsubscribe{PacketIdentifier: pid}

	if version == Version5 {
		u.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: unsubscribe properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	for r.Len() > 0 {
		topicFilter, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: unsubscribe topic filter: %v", robustmqerrors.ErrDecodeError, err)
		}
		u.TopicFilters = append(u.TopicFilters, topicFilter)
	}
	return u, nil
}

func (u *Unsubscribe) encodeBody(w *bytes.Buffer, version Version) error {
	writeUint16(w, u.PacketIdentifier)
	if version == Version5 {
		w.Write(encodeProperties(u.Properties))
	}
	for _, f := range u.TopicFilters {
		writeString(w, f)
	}
	return nil
}

// UnsubAck is the UNSUBACK packet.
type UnsubAck struct {
	PacketIdentifier uint16
	Properties       *Properties
	ReasonCodes      []byte
}

func (u *UnsubAck) Type() Type { return TypeUnsubAck }

func decodeUnsubAck(r *bytes.Reader, version Version) (Packet, error) {
	pid, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unsuback packet identifier: %v", robustmqerrors.ErrDecodeError, err)
	}
	u := &UnsubAck{PacketIdentifier: pid}

	if version == Version5 {
		u.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: unsuback properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	u.ReasonCodes = make([]byte, r.Len())
	if _, err := r.Read(u.ReasonCodes); err != nil && r.Len() > 0 {
		return nil, fmt.Errorf("%w: unsuback reason codes: %v", robustmqerrors.ErrDecodeError, err)
	}
	return u, nil
}

func (u *UnsubAck) encodeBody(w *bytes.Buffer, version Version) error {
	writeUint16(w, u.PacketIdentifier)
	if version == Version5 {
		w.Write(encodeProperties(u.Properties))
	}
	w.Write(u.ReasonCodes)
	return nil
}
