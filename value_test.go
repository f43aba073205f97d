package hstore

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	values := []any{
		int64(-42),
		uint64(7),
		3.25,
		float32(1.5),
		true,
		"hello",
		[]byte{1, 2, 3},
		[]string{"a", "bb", "ccc"},
		map[string]any{"k": "v"},
		&NDArray{Elem: KindInt64, Shape: []int{2, 2}, Data: []int64{1, 2, 3, 4}},
		&NDArray{Elem: KindUint8, Shape: []int{2, 3}, Data: []byte("abcdef")},
		&Ragged{Elem: KindFloat64, Rows: [][]float64{{1}, {2, 3}}},
	}
	opts := DefaultOptions()
	for _, v := range values {
		data, err := encodeValue(v, opts)
		if err != nil {
			t.Fatalf("encodeValue(%T) failed: %v", v, err)
		}
		got, err := decodeValue("/", "k", data)
		if err != nil {
			t.Fatalf("decodeValue(%T) failed: %v", v, err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("round trip of %T: got %#v, want %#v", v, got, v)
		}
	}
}

func TestValueRoundTrip_Ints(t *testing.T) {
	data, err := encodeValue(5, DefaultOptions())
	if err != nil {
		t.Fatalf("encodeValue(int) failed: %v", err)
	}
	got, err := decodeValue("/", "k", data)
	if err != nil {
		t.Fatalf("decodeValue failed: %v", err)
	}
	if got != int64(5) {
		t.Fatalf("int round trips as %T %v, want int64 5", got, got)
	}
}

func TestValueRoundTrip_NaN(t *testing.T) {
	data, err := encodeValue(math.NaN(), DefaultOptions())
	if err != nil {
		t.Fatalf("encodeValue(NaN) failed: %v", err)
	}
	got, err := decodeValue("/", "k", data)
	if err != nil {
		t.Fatalf("decodeValue failed: %v", err)
	}
	if f, ok := got.(float64); !ok || !math.IsNaN(f) {
		t.Fatalf("NaN round trips as %T %v", got, got)
	}
}

func TestValueCompression(t *testing.T) {
	big := make([]int64, 10000)
	v := &NDArray{Elem: KindInt64, Shape: []int{10000}, Data: big}

	opts := &Options{CompressThreshold: 64}
	data, err := encodeValue(v, opts)
	if err != nil {
		t.Fatalf("encodeValue failed: %v", err)
	}
	plain, err := encodeValue(v, &Options{CompressThreshold: -1})
	if err != nil {
		t.Fatalf("encodeValue failed: %v", err)
	}
	if len(data) >= len(plain) {
		t.Fatalf("compressed value (%d bytes) not smaller than plain (%d bytes)", len(data), len(plain))
	}
	got, err := decodeValue("/", "k", data)
	if err != nil {
		t.Fatalf("decodeValue failed: %v", err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("compressed round trip mismatch")
	}
}

func TestValueChecksum(t *testing.T) {
	data, err := encodeValue("precious", DefaultOptions())
	if err != nil {
		t.Fatalf("encodeValue failed: %v", err)
	}
	data[len(data)/2] ^= 0x40

	_, err = decodeValue("/", "k", data)
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("decodeValue(corrupted) err = %v, want CorruptError", err)
	}
}

func TestValueTruncated(t *testing.T) {
	_, err := decodeValue("/", "k", []byte{1, 2, 3})
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("decodeValue(short) err = %v, want CorruptError", err)
	}
}

func TestValueUnsupportedType(t *testing.T) {
	_, err := encodeValue(struct{}{}, DefaultOptions())
	if err == nil {
		t.Fatalf("encodeValue(struct{}{}) err = nil, wanted error")
	}
}
