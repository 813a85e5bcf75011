package gatewayv1

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every type of the gateway schema.
type Message interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

// Marshal encodes m in protobuf binary wire format.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("marshal: nil message")
	}
	return m.appendWire(nil), nil
}

// Unmarshal decodes b into m, replacing its previous contents.
func Unmarshal(b []byte, m Message) error {
	if m == nil {
		return errors.New("unmarshal: nil message")
	}
	return m.unmarshalWire(b)
}

type encoder struct {
	b []byte
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) strings(num protowire.Number, vs []string) {
	for _, v := range vs {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, v)
	}
}

func (e *encoder) int64(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(v))
}

func (e *encoder) enum(num protowire.Number, v int32) {
	e.int64(num, int64(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, 1)
}

func (e *encoder) double(num protowire.Number, v float64) {
	bits := math.Float64bits(v)
	if bits == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, bits)
}

// message appends m as a length-delimited field. Callers skip absent
// singular messages themselves; repeated elements are always written.
func (e *encoder) message(num protowire.Number, m Message) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, m.appendWire(nil))
}

// decoder walks the fields of one message. Typed accessors validate the
// wire type of the current field and latch the first error.
type decoder struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
	u   uint64
	raw []byte
	err error
}

func newDecoder(b []byte) *decoder {
	return &decoder{b: b}
}

func (d *decoder) next() bool {
	if d.err != nil || len(d.b) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return false
	}
	d.b = d.b[n:]
	d.num, d.typ = num, typ

	switch typ {
	case protowire.VarintType:
		d.u, n = protowire.ConsumeVarint(d.b)
	case protowire.Fixed64Type:
		d.u, n = protowire.ConsumeFixed64(d.b)
	case protowire.Fixed32Type:
		var v uint32
		v, n = protowire.ConsumeFixed32(d.b)
		d.u = uint64(v)
	case protowire.BytesType:
		d.raw, n = protowire.ConsumeBytes(d.b)
	default:
		n = protowire.ConsumeFieldValue(num, typ, d.b)
	}
	if n < 0 {
		d.err = fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		return false
	}
	d.b = d.b[n:]
	return true
}

func (d *decoder) expect(typ protowire.Type) bool {
	if d.err != nil {
		return false
	}
	if d.typ != typ {
		d.err = fmt.Errorf("field %d: wire type %d, want %d", d.num, d.typ, typ)
		return false
	}
	return true
}

func (d *decoder) int64() int64 {
	if !d.expect(protowire.VarintType) {
		return 0
	}
	return int64(d.u)
}

func (d *decoder) enum() int32 {
	if !d.expect(protowire.VarintType) {
		return 0
	}
	return int32(d.u)
}

func (d *decoder) bool() bool {
	if !d.expect(protowire.VarintType) {
		return false
	}
	return d.u != 0
}

func (d *decoder) double() float64 {
	if !d.expect(protowire.Fixed64Type) {
		return 0
	}
	return math.Float64frombits(d.u)
}

func (d *decoder) string() string {
	if !d.expect(protowire.BytesType) {
		return ""
	}
	if !utf8.Valid(d.raw) {
		d.err = fmt.Errorf("field %d: invalid UTF-8", d.num)
		return ""
	}
	return string(d.raw)
}

func (d *decoder) message(m Message) {
	if !d.expect(protowire.BytesType) {
		return
	}
	if err := m.unmarshalWire(d.raw); err != nil {
		d.err = fmt.Errorf("field %d: %w", d.num, err)
	}
}

// nonNil returns s, or an empty slice when s is nil. Decoded repeated fields
// are never nil so an empty list survives a round trip.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
