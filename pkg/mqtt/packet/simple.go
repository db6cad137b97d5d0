package packet

import (
	"bytes"
	"fmt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// PingReq is the PINGREQ packet; it carries no variable header or payload.
type PingReq struct{}

func (PingReq) Type() Type { return TypePingReq }

func (PingReq) encodeBody(w *bytes.Buffer, version Version) error { return nil }

// PingResp is the PINGRESP packet; it carries no variable header or payload.
type PingResp struct{}

func (PingResp) Type() Type { return TypePingResp }

func (PingResp) encodeBody(w *bytes.Buffer, version Version) error { return nil }

// Disconnect is the DISCONNECT packet. MQTT 3.1.1 carries no body at all;
// MQTT 5 adds an optional reason code and property list, both of which may
// be omitted when the reason code is 0x00 (Normal disconnection) and no
// properties are present.
type Disconnect struct {
	ReasonCode byte
	Properties *Properties
}

func (d *Disconnect) Type() Type { return TypeDisconnect }

func decodeDisconnect(r *bytes.Reader, version Version) (Packet, error) {
	d := &Disconnect{}
	if version != Version5 || r.Len() == 0 {
		return d, nil
	}
	reasonCode, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: disconnect reason code: %v", robustmqerrors.ErrDecodeError, err)
	}
	d.ReasonCode = reasonCode
	if r.Len() > 0 {
		d.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: disconnect properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}
	return d, nil
}

func (d *Disconnect) encodeBody(w *bytes.Buffer, version Version) error {
	if version != Version5 {
		return nil
	}
	if d.ReasonCode == 0 && d.Properties == nil {
		return nil
	}
	w.WriteByte(d.ReasonCode)
	w.Write(encodeProperties(d.Properties))
	return nil
}

// Auth is the MQTT 5 AUTH packet (enhanced authentication exchange); it has
// no meaning in MQTT 3.1.1, which never emits or accepts it.
type Auth struct {
	ReasonCode byte
	Properties *Properties
}

func (a *Auth) Type() Type { return TypeAuth }

func decodeAuth(r *bytes.Reader, version Version) (Packet, error) {
	a := &Auth{}
	if r.Len() == 0 {
		return a, nil
	}
	reasonCode, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: auth reason code: %v", robustmqerrors.ErrDecodeError, err)
	}
	a.ReasonCode = reasonCode
	if r.Len() > 0 {
		a.Properties, err = decodeProperties(r)
		if err != nil {
			return nil, fmt.Errorf("%w: auth properties: %v", robustmqerrors.ErrDecodeError, err)
		}
	}
	return a, nil
}

func (a *Auth) encodeBody(w *bytes.Buffer, version Version) error {
	if a.ReasonCode == 0 && a.Properties == nil {
		return nil
	}
	w.WriteByte(a.ReasonCode)
	w.Write(encodeProperties(a.Properties))
	return nil
}
