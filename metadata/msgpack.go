package metadata

import (
	"unique"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ msgpack.CustomEncoder = (*Value)(nil)
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// valueWire mirrors the JSON wire shape for MessagePack encoding. The interned
// string field cannot be encoded directly, so it is flattened here.
type valueWire struct {
	Kind Kind             `msgpack:"k"`
	I64  int64            `msgpack:"i,omitempty"`
	F64  float64          `msgpack:"f,omitempty"`
	S    string           `msgpack:"s,omitempty"`
	B    bool             `msgpack:"b,omitempty"`
	A    []Value          `msgpack:"a,omitempty"`
	M    map[string]Value `msgpack:"m,omitempty"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	w := valueWire{Kind: v.Kind, I64: v.I64, F64: v.F64, B: v.B, A: v.A, M: v.M}
	if v.Kind == KindString {
		w.S = v.s.Value()
	}
	return enc.Encode(w)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w valueWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	v.Kind, v.I64, v.F64, v.B, v.A, v.M = w.Kind, w.I64, w.F64, w.B, w.A, w.M
	if w.Kind == KindString {
		v.s = unique.Make(w.S)
	}
	return nil
}
