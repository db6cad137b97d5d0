package packet

import (
	"bytes"
	"fmt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// Connect flags, MQTT 3.1.1 section 3.1.2.3 / MQTT 5 section 3.1.2.3.
const (
	connectFlagUsername    = 0x80
	connectFlagPassword    = 0x40
	connectFlagWillRetain  = 0x20
	connectFlagWillFlag    = 0x04
	connectFlagCleanStart  = 0x02
)

// Connect is the CONNECT packet.
type Connect struct {
	ProtocolName    string
	ProtocolVersion Version
	CleanStart      bool
	KeepAlive       uint16
	ClientID        string

	WillRetain  bool
	WillQoS     QoS
	WillTopic   string
	WillPayload []byte
	WillProps   *Properties

	Username string
	Password []byte

	Properties *Properties
}

func (c *Connect) Type() Type { return TypeConnect }

func decodeConnect(r *bytes.Reader, version Version) (Packet, error) {
	protocolName, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connect protocol name: %v", robustmqerrors.ErrDecodeError, err)
	}
	protocolLevel, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connect protocol level: %v", robustmqerrors.ErrDecodeError, err)
	}
	flags, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connect flags: %v", robustmqerrors.ErrDecodeError, err)
	}
	keepAlive, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connect keep alive: %v", robustmqerrors.ErrDecodeError, err)
	}

	c := &Connect{
		ProtocolName:    protocolName,
		ProtocolVersion: Version(protocolLevel),
		CleanStart:      flags&connectFlagCleanStart != 0,
		KeepAlive:       keepAlive,
	}

	if Version(protocolLevel) == Version5 {
		c.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connect properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	c.ClientID, err = readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connect client id: %v", robustmqerrors.ErrDecodeError, err)
	}

	if flags&connectFlagWillFlag != 0 {
		c.WillRetain = flags&connectFlagWillRetain != 0
		c.WillQoS = QoS((flags >> 3) & 0x03)
		if Version(protocolLevel) == Version5 {
			c.WillProps, err = decodeProperties(r)
			if err != nil {
				return nil, fmt.Errorf("%w: connect will properties: %v", robustmqerrors.ErrDecodeError, err)
			}
		}
		c.WillTopic, err = readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connect will topic: %v", robustmqerrors.ErrDecodeError, err)
		}
		c.WillPayload, err = readBinary(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connect will payload: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	if flags&connectFlagUsername != 0 {
		c.Username, err = readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connect username: %v", robustmqerrors.ErrDecodeError, err)
		}
	}
	if flags&connectFlagPassword != 0 {
		c.Password, err = readBinary(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connect password: %v", robustmqerrors.ErrDecodeError, err)
		}
	}

	return c, nil
}

func (c *Connect) encodeBody(w *bytes.Buffer, version Version) error {
	writeString(w, "MQTT")
	w.WriteByte(byte(version))

	var flags byte
	if c.CleanStart {
		flags |= connectFlagCleanStart
	}
	if c.WillTopic != "" {
		flags |= connectFlagWillFlag
		flags |= byte(c.WillQoS) << 3
		if c.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if c.Username != "" {
		flags |= connectFlagUsername
	}
	if c.Password != nil {
		flags |= connectFlagPassword
	}
	w.WriteByte(flags)
	writeUint16(w, c.KeepAlive)

	if version == Version5 {
		w.Write(encodeProperties(c.Properties))
	}

	writeString(w, c.ClientID)

	if flags&connectFlagWillFlag != 0 {
		if version == Version5 {
			w.Write(encodeProperties(c.WillProps))
		}
		writeString(w, c.WillTopic)
		writeBinary(w, c.WillPayload)
	}
	if c.Username != "" {
		writeString(w, c.Username)
	}
	if c.Password != nil {
		writeBinary(w, c.Password)
	}
	return nil
}

// ConnAck is the CONNACK packet.
type ConnAck struct {
	SessionPresent bool
	ReasonCode     byte
	Properties     *Properties
}

func (c *ConnAck) Type() Type { return TypeConnAck }

func decodeConnAck(r *bytes.Reader, version Version) (Packet, error) {
	flags, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connack flags: %v", robustmqerrors.ErrDecodeError, err)
	}
	reasonCode, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: connack reason code: %v", robustmqerrors.ErrDecodeError, err)
	}
	c := &ConnAck{
		SessionPresent: flags&0x01 != 0,
		ReasonCode:     reasonCode,
	}
	if version == Version5 {
		c.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: connack properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}
	return c, nil
}

func (c *ConnAck) encodeBody(w *bytes.Buffer, version Version) error {
	var flags byte
	if c.SessionPresent {
		flags |= 0x01
	}
	w.WriteByte(flags)
	w.WriteByte(c.ReasonCode)
	if version == Version5 {
		w.Write(encodeProperties(c.Properties))
	}
	return nil
}
