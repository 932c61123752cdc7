package memldap

import "io"

// Protocol operation types, [APPLICATION n] of the LDAPMessage protocolOp choice
const (
	TypeBindRequestOp           BerType = BerClassApplication | berConstructed | 0
	TypeBindResponseOp          BerType = BerClassApplication | berConstructed | 1
	TypeUnbindRequestOp         BerType = BerClassApplication | 2
	TypeSearchRequestOp         BerType = BerClassApplication | berConstructed | 3
	TypeSearchResultEntryOp     BerType = BerClassApplication | berConstructed | 4
	TypeSearchResultDoneOp      BerType = BerClassApplication | berConstructed | 5
	TypeModifyRequestOp         BerType = BerClassApplication | berConstructed | 6
	TypeModifyResponseOp        BerType = BerClassApplication | berConstructed | 7
	TypeAddRequestOp            BerType = BerClassApplication | berConstructed | 8
	TypeAddResponseOp           BerType = BerClassApplication | berConstructed | 9
	TypeDeleteRequestOp         BerType = BerClassApplication | 10
	TypeDeleteResponseOp        BerType = BerClassApplication | berConstructed | 11
	TypeModifyDNRequestOp       BerType = BerClassApplication | berConstructed | 12
	TypeModifyDNResponseOp      BerType = BerClassApplication | berConstructed | 13
	TypeCompareRequestOp        BerType = BerClassApplication | berConstructed | 14
	TypeCompareResponseOp       BerType = BerClassApplication | berConstructed | 15
	TypeAbandonRequestOp        BerType = BerClassApplication | 16
	TypeSearchResultReferenceOp BerType = BerClassApplication | berConstructed | 19
	TypeExtendedRequestOp       BerType = BerClassApplication | berConstructed | 23
	TypeExtendedResponseOp      BerType = BerClassApplication | berConstructed | 24
	TypeIntermediateResponseOp  BerType = BerClassApplication | berConstructed | 25
)

// MessageID ::= INTEGER (0 .. maxInt)
type MessageID uint32

// A control attached to a request or response
type Control struct {
	OID          OID
	Criticality  bool
	ControlValue string
}

// An LDAPMessage envelope.
// ProtocolOp stays undecoded until the server dispatches it.
type Message struct {
	MessageID  MessageID
	ProtocolOp BerRawElement
	Controls   []Control
}

var controlsType = BerContextSpecificType(0, true)

// Reads the next LDAPMessage from r.
func ReadLDAPMessage(r io.Reader) (*Message, error) {
	raw, err := BerReadElement(r)
	if err != nil {
		return nil, err
	}
	if raw.Type != BerTypeSequence {
		// A TLS record header reads as type 0x16 with length 3
		if raw.Type == 0x16 && len(raw.Data) == 0x03 {
			return nil, ErrUnexpectedTLS
		}
		return nil, ErrWrongElementType.WithInfo("LDAPMessage type", raw.Type)
	}
	seq := decodeSequence("LDAPMessage", raw.Data).length(2, 3)
	msg := &Message{
		MessageID:  MessageID(seq.integer(0, "messageID", 0, maxInt)),
		ProtocolOp: seq.raw(1, "protocolOp"),
		Controls:   []Control{},
	}
	if seq.Len() == 3 {
		controls := seq.sequence(2, controlsType, "controls")
		for i := 0; i < controls.Len() && seq.ok(); i++ {
			msg.Controls = append(msg.Controls, decodeControl(controls.sequence(i, BerTypeSequence, "control")))
		}
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return msg, nil
}

//	Control ::= SEQUENCE {
//		controlType      LDAPOID,
//		criticality      BOOLEAN DEFAULT FALSE,
//		controlValue     OCTET STRING OPTIONAL }
func decodeControl(seq *berSequence) Control {
	seq.length(1, 3)
	c := Control{OID: OID(seq.octetString(0, "controlType"))}
	next := 1
	if seq.is(next, BerTypeBoolean) {
		c.Criticality = seq.boolean(next, BerTypeBoolean, "criticality")
		next++
	}
	if next < seq.Len() {
		c.ControlValue = seq.octetString(next, "controlValue")
		next++
	}
	if !seq.ok() {
		return Control{}
	}
	if next != seq.Len() {
		seq.fail(ErrWrongSequenceLength.WithInfo(seq.name+" sequence length", seq.Len()))
	} else if err := c.OID.Validate(); err != nil {
		seq.fail(err)
	}
	return c
}

// Returns the complete encoded LDAPMessage.
func (msg *Message) EncodeWithHeader() []byte {
	var b berBuilder
	b.integer(int64(msg.MessageID))
	b.add(msg.ProtocolOp.Type, msg.ProtocolOp.Data)
	if len(msg.Controls) > 0 {
		var controls berBuilder
		for _, c := range msg.Controls {
			var cb berBuilder
			cb.str(string(c.OID))
			if c.Criticality {
				cb.boolean(true)
			}
			if c.ControlValue != "" {
				cb.str(c.ControlValue)
			}
			controls.add(BerTypeSequence, cb.bytes())
		}
		b.add(controlsType, controls.bytes())
	}
	return BerEncodeSequence(b.bytes())
}
