package persistence

import (
	"bytes"
	"testing"
)

func TestBinarySliceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)

	vec := []float32{1.5, -2.25, 3.0}
	ids := []uint64{7, 11, 13}

	if err := bw.WriteFloat32Slice(vec); err != nil {
		t.Fatalf("WriteFloat32Slice() error = %v", err)
	}
	if err := bw.WriteUint64Slice(ids); err != nil {
		t.Fatalf("WriteUint64Slice() error = %v", err)
	}

	br := NewBinaryReader(&buf)

	gotVec, err := br.ReadFloat32Slice(len(vec))
	if err != nil {
		t.Fatalf("ReadFloat32Slice() error = %v", err)
	}
	for i := range vec {
		if gotVec[i] != vec[i] {
			t.Errorf("vec[%d] = %v, want %v", i, gotVec[i], vec[i])
		}
	}

	gotIDs, err := br.ReadUint64Slice(len(ids))
	if err != nil {
		t.Fatalf("ReadUint64Slice() error = %v", err)
	}
	for i := range ids {
		if gotIDs[i] != ids[i] {
			t.Errorf("ids[%d] = %v, want %v", i, gotIDs[i], ids[i])
		}
	}
}

func TestBinaryReadInto(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)

	vec := []float32{0.25, 0.5, 0.75, 1.0}
	if err := bw.WriteFloat32Slice(vec); err != nil {
		t.Fatal(err)
	}

	dst := make([]float32, len(vec))
	br := NewBinaryReader(&buf)
	if err := br.ReadFloat32SliceInto(dst); err != nil {
		t.Fatalf("ReadFloat32SliceInto() error = %v", err)
	}
	for i := range vec {
		if dst[i] != vec[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], vec[i])
		}
	}
}

func TestBinaryLengthPrefixedBytes(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)

	payload := []byte(`{"next_id":3}`)
	if err := bw.WriteBytes(payload); err != nil {
		t.Fatalf("WriteBytes() error = %v", err)
	}

	br := NewBinaryReader(&buf)
	got, err := br.ReadBytes(1 << 20)
	if err != nil {
		t.Fatalf("ReadBytes() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadBytes() = %q, want %q", got, payload)
	}
}

func TestBinaryReadBytesLimit(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	if err := bw.WriteBytes(make([]byte, 64)); err != nil {
		t.Fatal(err)
	}

	br := NewBinaryReader(&buf)
	if _, err := br.ReadBytes(16); err == nil {
		t.Error("expected error for payload exceeding limit")
	}
}

func TestBinaryEmptySlices(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)

	if err := bw.WriteFloat32Slice(nil); err != nil {
		t.Fatal(err)
	}
	if err := bw.WriteUint64Slice(nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty slices wrote %d bytes", buf.Len())
	}

	br := NewBinaryReader(&buf)
	if vec, err := br.ReadFloat32Slice(0); err != nil || vec != nil {
		t.Errorf("ReadFloat32Slice(0) = %v, %v", vec, err)
	}
}
