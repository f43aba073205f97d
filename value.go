package hstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies the type of a terminal value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindBytes
	KindStrings
	KindArray
	KindRagged
	KindMap
)

var kindNames = map[Kind]string{
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindString:  "string",
	KindBytes:   "bytes",
	KindStrings: "strings",
	KindArray:   "array",
	KindRagged:  "ragged",
	KindMap:     "map",
}

func (k Kind) String() string {
	if s := kindNames[k]; s != "" {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// NDArray is a homogeneous n-dimensional array leaf. Data is the row-major
// flat slice of the element type selected by Elem ([]int64, []uint64,
// []float64, []bool, []string, []byte, []int32, []float32).
type NDArray struct {
	Elem  Kind
	Shape []int
	Data  any
}

// Len returns the total element count implied by Shape.
func (a *NDArray) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Ragged is a jagged array leaf: per-row slices of differing lengths. Rows is
// [][]int64, [][]uint64 or [][]float64 per Elem.
type Ragged struct {
	Elem Kind
	Rows any
}

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfGzip

	vfVerMask = vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3
	vfVer1    = vfVerBit0
)

const valueChecksumSize = 8

func kindOf(v any) (Kind, error) {
	switch v.(type) {
	case int8:
		return KindInt8, nil
	case int16:
		return KindInt16, nil
	case int32:
		return KindInt32, nil
	case int64, int:
		return KindInt64, nil
	case uint8:
		return KindUint8, nil
	case uint16:
		return KindUint16, nil
	case uint32:
		return KindUint32, nil
	case uint64, uint:
		return KindUint64, nil
	case float32:
		return KindFloat32, nil
	case float64:
		return KindFloat64, nil
	case bool:
		return KindBool, nil
	case string:
		return KindString, nil
	case []byte:
		return KindBytes, nil
	case []string:
		return KindStrings, nil
	case *NDArray:
		return KindArray, nil
	case *Ragged:
		return KindRagged, nil
	case map[string]any:
		return KindMap, nil
	default:
		return KindInvalid, fmt.Errorf("unsupported value type %T", v)
	}
}

// encodeValue produces the on-disk representation of a terminal value:
// flags (uvarint), kind (uvarint), msgpack payload, xxhash64 checksum.
func encodeValue(v any, opts *Options) ([]byte, error) {
	kind, err := kindOf(v)
	if err != nil {
		return nil, err
	}
	payload, err := marshalPayload(kind, v)
	if err != nil {
		return nil, err
	}

	flags := vfVer1
	if t := opts.orDefault().CompressThreshold; t >= 0 && len(payload) > t {
		var cb bytes.Buffer
		zw := gzip.NewWriter(&cb)
		if _, err := zw.Write(payload); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		if cb.Len() < len(payload) {
			payload = cb.Bytes()
			flags |= vfGzip
		}
	}

	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(payload)+valueChecksumSize)
	buf = binary.AppendUvarint(buf, uint64(flags))
	buf = binary.AppendUvarint(buf, uint64(kind))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
	return buf, nil
}

// decodeValue reverses encodeValue. A checksum mismatch or truncation is
// reported as CorruptError; unknown version bits as VersionError.
func decodeValue(path, key string, data []byte) (any, error) {
	if len(data) < valueChecksumSize+2 {
		return nil, Corruptf(path, nil, "value %q too short (%d bytes)", key, len(data))
	}
	body := data[:len(data)-valueChecksumSize]
	want := binary.BigEndian.Uint64(data[len(data)-valueChecksumSize:])
	if got := xxhash.Sum64(body); got != want {
		return nil, Corruptf(path, nil, "value %q checksum mismatch (got %x, want %x)", key, got, want)
	}

	rawFlags, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, Corruptf(path, nil, "value %q has invalid flags", key)
	}
	body = body[n:]
	flags := valueFlags(rawFlags)
	if flags.ver() != vfVer1 {
		return nil, NewVersionError(path+"/"+key, fmt.Sprintf("value format %d", flags.ver()), "1")
	}

	rawKind, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, Corruptf(path, nil, "value %q has invalid kind", key)
	}
	payload := body[n:]

	if flags&vfGzip != 0 {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, Corruptf(path, err, "value %q has invalid gzip payload", key)
		}
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, Corruptf(path, err, "value %q has invalid gzip payload", key)
		}
		if err := zr.Close(); err != nil {
			return nil, Corruptf(path, err, "value %q has invalid gzip payload", key)
		}
	}

	v, err := unmarshalPayload(Kind(rawKind), payload)
	if err != nil {
		return nil, Corruptf(path, err, "failed to decode value %q (%v)", key, Kind(rawKind))
	}
	return v, nil
}

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

type ndArrayWire struct {
	Elem  Kind               `msgpack:"k"`
	Shape []int              `msgpack:"s"`
	Data  msgpack.RawMessage `msgpack:"d"`
}

type raggedWire struct {
	Elem Kind               `msgpack:"k"`
	Rows msgpack.RawMessage `msgpack:"r"`
}

func marshalPayload(kind Kind, v any) ([]byte, error) {
	switch kind {
	case KindInt64:
		if i, ok := v.(int); ok {
			v = int64(i)
		}
	case KindUint64:
		if u, ok := v.(uint); ok {
			v = uint64(u)
		}
	case KindArray:
		a := v.(*NDArray)
		if err := checkArrayElem(a.Elem, a.Data); err != nil {
			return nil, err
		}
		raw, err := msgpack.Marshal(a.Data)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(&ndArrayWire{Elem: a.Elem, Shape: a.Shape, Data: raw})
	case KindRagged:
		r := v.(*Ragged)
		raw, err := msgpack.Marshal(r.Rows)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(&raggedWire{Elem: r.Elem, Rows: raw})
	}
	return msgpack.Marshal(v)
}

func unmarshalPayload(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindInt8:
		return unmarshalAs[int8](payload)
	case KindInt16:
		return unmarshalAs[int16](payload)
	case KindInt32:
		return unmarshalAs[int32](payload)
	case KindInt64:
		return unmarshalAs[int64](payload)
	case KindUint8:
		return unmarshalAs[uint8](payload)
	case KindUint16:
		return unmarshalAs[uint16](payload)
	case KindUint32:
		return unmarshalAs[uint32](payload)
	case KindUint64:
		return unmarshalAs[uint64](payload)
	case KindFloat32:
		return unmarshalAs[float32](payload)
	case KindFloat64:
		return unmarshalAs[float64](payload)
	case KindBool:
		return unmarshalAs[bool](payload)
	case KindString:
		return unmarshalAs[string](payload)
	case KindBytes:
		return unmarshalAs[[]byte](payload)
	case KindStrings:
		return unmarshalAs[[]string](payload)
	case KindMap:
		return unmarshalAs[map[string]any](payload)
	case KindArray:
		var w ndArrayWire
		if err := msgpack.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		data, err := unmarshalArrayData(w.Elem, w.Data)
		if err != nil {
			return nil, err
		}
		return &NDArray{Elem: w.Elem, Shape: w.Shape, Data: data}, nil
	case KindRagged:
		var w raggedWire
		if err := msgpack.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		rows, err := unmarshalRaggedRows(w.Elem, w.Rows)
		if err != nil {
			return nil, err
		}
		return &Ragged{Elem: w.Elem, Rows: rows}, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v", kind)
	}
}

func unmarshalAs[T any](payload []byte) (any, error) {
	var v T
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func checkArrayElem(elem Kind, data any) error {
	ok := false
	switch elem {
	case KindInt32:
		_, ok = data.([]int32)
	case KindInt64:
		_, ok = data.([]int64)
	case KindUint8:
		_, ok = data.([]byte)
	case KindUint64:
		_, ok = data.([]uint64)
	case KindFloat32:
		_, ok = data.([]float32)
	case KindFloat64:
		_, ok = data.([]float64)
	case KindBool:
		_, ok = data.([]bool)
	case KindString:
		_, ok = data.([]string)
	}
	if !ok {
		return fmt.Errorf("array element kind %v does not match data type %T", elem, data)
	}
	return nil
}

func unmarshalArrayData(elem Kind, raw []byte) (any, error) {
	switch elem {
	case KindInt32:
		return unmarshalAs[[]int32](raw)
	case KindInt64:
		return unmarshalAs[[]int64](raw)
	case KindUint8:
		return unmarshalAs[[]byte](raw)
	case KindUint64:
		return unmarshalAs[[]uint64](raw)
	case KindFloat32:
		return unmarshalAs[[]float32](raw)
	case KindFloat64:
		return unmarshalAs[[]float64](raw)
	case KindBool:
		return unmarshalAs[[]bool](raw)
	case KindString:
		return unmarshalAs[[]string](raw)
	default:
		return nil, fmt.Errorf("unsupported array element kind %v", elem)
	}
}

func unmarshalRaggedRows(elem Kind, raw []byte) (any, error) {
	switch elem {
	case KindInt64:
		return unmarshalAs[[][]int64](raw)
	case KindUint64:
		return unmarshalAs[[][]uint64](raw)
	case KindFloat64:
		return unmarshalAs[[][]float64](raw)
	default:
		return nil, fmt.Errorf("unsupported ragged element kind %v", elem)
	}
}
