package packet

import (
	"bytes"
	"io"
)

// Property identifiers, MQTT 5 section 2.2.2.2.
const (
	propPayloadFormatIndicator   = 0x01
	propMessageExpiryInterval    = 0x02
	propContentType              = 0x03
	propResponseTopic            = 0x08
	propCorrelationData          = 0x09
	propSubscriptionIdentifier   = 0x0B
	propSessionExpiryInterval    = 0x11
	propAssignedClientIdentifier = 0x12
	propServerKeepAlive          = 0x13
	propAuthenticationMethod     = 0x15
	propAuthenticationData       = 0x16
	propRequestProblemInfo       = 0x17
	propWillDelayInterval        = 0x18
	propRequestResponseInfo      = 0x19
	propResponseInformation      = 0x1A
	propServerReference          = 0x1C
	propReasonString             = 0x1F
	propReceiveMaximum           = 0x21
	propTopicAliasMaximum        = 0x22
	propTopicAlias               = 0x23
	propMaximumQoS               = 0x24
	propRetainAvailable          = 0x25
	propUserProperty             = 0x26
	propMaximumPacketSize        = 0x27
	propWildcardSubAvailable     = 0x28
	propSubscriptionIDAvailable  = 0x29
	propSharedSubAvailable       = 0x2A
)

// UserProperty is one MQTT 5 user property key/value pair; repeatable.
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds every MQTT 5 property this broker surfaces, across
// CONNECT/CONNACK/PUBLISH/SUBSCRIBE and their acknowledgements. Zero value
// fields are simply omitted on encode; presence is tracked by the pointer
// fields so "0" and "absent" are distinguishable where the spec requires it.
type Properties struct {
	PayloadFormatIndicator   *byte
	MessageExpiryInterval    *uint32
	ContentType              string
	ResponseTopic            string
	CorrelationData          []byte
	// SubscriptionIdentifiers holds every Subscription Identifier property on
	// this packet. A PUBLISH forwarded to a client may carry one entry per
	// matching subscription that requested an identifier (MQTT 5 section
	// 3.3.2.3.8), so this is a slice rather than a single value.
	SubscriptionIdentifiers []int
	SessionExpiryInterval    *uint32
	AssignedClientIdentifier string
	ServerKeepAlive          *uint16
	AuthenticationMethod     string
	AuthenticationData       []byte
	RequestProblemInfo       *byte
	WillDelayInterval        *uint32
	RequestResponseInfo      *byte
	ResponseInformation      string
	ServerReference          string
	ReasonString             string
	ReceiveMaximum           *uint16
	TopicAliasMaximum        *uint16
	TopicAlias               *uint16
	MaximumQoS               *byte
	RetainAvailable          *byte
	UserProperties           []UserProperty
	MaximumPacketSize        *uint32
	WildcardSubAvailable     *byte
	SubscriptionIDAvailable  *byte
	SharedSubAvailable       *byte
}

func byteP(b byte) *byte    { return &b }
func u16P(v uint16) *uint16 { return &v }
func u32P(v uint32) *uint32 { return &v }

// EncodeProperties renders p in MQTT 5 wire format (varint length prefix
// followed by each present property), for callers outside this package that
// need to persist a Properties value (e.g. a retained message store).
func EncodeProperties(p *Properties) []byte { return encodeProperties(p) }

// DecodeProperties parses a wire-format property list previously produced by
// EncodeProperties.
func DecodeProperties(r io.Reader) (*Properties, error) { return decodeProperties(r) }

func encodeProperties(p *Properties) []byte {
	var buf bytes.Buffer
	if p == nil {
		return encodeVarInt(0)
	}

	writeByteProp := func(id byte, v *byte) {
		if v == nil {
			return
		}
		buf.WriteByte(id)
		buf.WriteByte(*v)
	}
	writeU16Prop := func(id byte, v *uint16) {
		if v == nil {
			return
		}
		buf.WriteByte(id)
		writeUint16(&buf, *v)
	}
	writeU32Prop := func(id byte, v *uint32) {
		if v == nil {
			return
		}
		buf.WriteByte(id)
		writeUint32(&buf, *v)
	}
	writeStringProp := func(id byte, v string) {
		if v == "" {
			return
		}
		buf.WriteByte(id)
		writeString(&buf, v)
	}
	writeBinaryProp := func(id byte, v []byte) {
		if v == nil {
			return
		}
		buf.WriteByte(id)
		writeBinary(&buf, v)
	}

	writeByteProp(propPayloadFormatIndicator, p.PayloadFormatIndicator)
	writeU32Prop(propMessageExpiryInterval, p.MessageExpiryInterval)
	writeStringProp(propContentType, p.ContentType)
	writeStringProp(propResponseTopic, p.ResponseTopic)
	writeBinaryProp(propCorrelationData, p.CorrelationData)
	for _, id := range p.SubscriptionIdentifiers {
		buf.WriteByte(propSubscriptionIdentifier)
		buf.Write(encodeVarInt(id))
	}
	writeU32Prop(propSessionExpiryInterval, p.SessionExpiryInterval)
	writeStringProp(propAssignedClientIdentifier, p.AssignedClientIdentifier)
	writeU16Prop(propServerKeepAlive, p.ServerKeepAlive)
	writeStringProp(propAuthenticationMethod, p.AuthenticationMethod)
	writeBinaryProp(propAuthenticationData, p.AuthenticationData)
	writeByteProp(propRequestProblemInfo, p.RequestProblemInfo)
	writeU32Prop(propWillDelayInterval, p.WillDelayInterval)
	writeByteProp(propRequestResponseInfo, p.RequestResponseInfo)
	writeStringProp(propResponseInformation, p.ResponseInformation)
	writeStringProp(propServerReference, p.ServerReference)
	writeStringProp(propReasonString, p.ReasonString)
	writeU16Prop(propReceiveMaximum, p.ReceiveMaximum)
	writeU16Prop(propTopicAliasMaximum, p.TopicAliasMaximum)
	writeU16Prop(propTopicAlias, p.TopicAlias)
	writeByteProp(propMaximumQoS, p.MaximumQoS)
	writeByteProp(propRetainAvailable, p.RetainAvailable)
	for _, up := range p.UserProperties {
		buf.WriteByte(propUserProperty)
		writeString(&buf, up.Key)
		writeString(&buf, up.Value)
	}
	writeU32Prop(propMaximumPacketSize, p.MaximumPacketSize)
	writeByteProp(propWildcardSubAvailable, p.WildcardSubAvailable)
	writeByteProp(propSubscriptionIDAvailable, p.SubscriptionIDAvailable)
	writeByteProp(propSharedSubAvailable, p.SharedSubAvailable)

	var out bytes.Buffer
	out.Write(encodeVarInt(buf.Len()))
	out.Write(buf.Bytes())
	return out.Bytes()
}

func decodeProperties(r io.Reader) (*Properties, error) {
	length, err := decodeVarInt(r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return &Properties{}, nil
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	pr := bytes.NewReader(raw)

	props := &Properties{}
	for pr.Len() > 0 {
		idByte := make([]byte, 1)
		if _, err := io.ReadFull(pr, idByte); err != nil {
			return nil, err
		}
		switch idByte[0] {
		case propPayloadFormatIndicator:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.PayloadFormatIndicator = byteP(b)
		case propMessageExpiryInterval:
			v, err := readUint32(pr)
			if err != nil {
				return nil, err
			}
			props.MessageExpiryInterval = u32P(v)
		case propContentType:
			props.ContentType, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propResponseTopic:
			props.ResponseTopic, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propCorrelationData:
			props.CorrelationData, err = readBinary(pr)
			if err != nil {
				return nil, err
			}
		case propSubscriptionIdentifier:
			v, err := decodeVarInt(pr)
			if err != nil {
				return nil, err
			}
			props.SubscriptionIdentifiers = append(props.SubscriptionIdentifiers, v)
		case propSessionExpiryInterval:
			v, err := readUint32(pr)
			if err != nil {
				return nil, err
			}
			props.SessionExpiryInterval = u32P(v)
		case propAssignedClientIdentifier:
			props.AssignedClientIdentifier, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propServerKeepAlive:
			v, err := readUint16(pr)
			if err != nil {
				return nil, err
			}
			props.ServerKeepAlive = u16P(v)
		case propAuthenticationMethod:
			props.AuthenticationMethod, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propAuthenticationData:
			props.AuthenticationData, err = readBinary(pr)
			if err != nil {
				return nil, err
			}
		case propRequestProblemInfo:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.RequestProblemInfo = byteP(b)
		case propWillDelayInterval:
			v, err := readUint32(pr)
			if err != nil {
				return nil, err
			}
			props.WillDelayInterval = u32P(v)
		case propRequestResponseInfo:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.RequestResponseInfo = byteP(b)
		case propResponseInformation:
			props.ResponseInformation, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propServerReference:
			props.ServerReference, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propReasonString:
			props.ReasonString, err = readString(pr)
			if err != nil {
				return nil, err
			}
		case propReceiveMaximum:
			v, err := readUint16(pr)
			if err != nil {
				return nil, err
			}
			props.ReceiveMaximum = u16P(v)
		case propTopicAliasMaximum:
			v, err := readUint16(pr)
			if err != nil {
				return nil, err
			}
			props.TopicAliasMaximum = u16P(v)
		case propTopicAlias:
			v, err := readUint16(pr)
			if err != nil {
				return nil, err
			}
			props.TopicAlias = u16P(v)
		case propMaximumQoS:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.MaximumQoS = byteP(b)
		case propRetainAvailable:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.RetainAvailable = byteP(b)
		case propUserProperty:
			key, err := readString(pr)
			if err != nil {
				return nil, err
			}
			value, err := readString(pr)
			if err != nil {
				return nil, err
			}
			props.UserProperties = append(props.UserProperties, UserProperty{Key: key, Value: value})
		case propMaximumPacketSize:
			v, err := readUint32(pr)
			if err != nil {
				return nil, err
			}
			props.MaximumPacketSize = u32P(v)
		case propWildcardSubAvailable:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.WildcardSubAvailable = byteP(b)
		case propSubscriptionIDAvailable:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.SubscriptionIDAvailable = byteP(b)
		case propSharedSubAvailable:
			b, err := readByte(pr)
			if err != nil {
				return nil, err
			}
			props.SharedSubAvailable = byteP(b)
		}
	}
	return props, nil
}

func readByte(r io.Reader) (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}
