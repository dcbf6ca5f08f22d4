package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var fdt = append([]byte{0xd0, 0x0d, 0xfe, 0xed}, bytes.Repeat([]byte("node\x00"), 200)...)

func zstdOf(t *testing.T, b []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil)
}

func lz4Of(t *testing.T, b []byte) []byte {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want Format
	}{
		{"raw", fdt, Raw},
		{"zstd", zstdOf(t, fdt), Zstd},
		{"lz4", lz4Of(t, fdt), LZ4},
	}
	for _, c := range cases {
		if f := Detect(c.in); f != c.want {
			t.Errorf("%s: detected %v", c.name, f)
		}
		out, err := Decode(c.in)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !bytes.Equal(out, fdt) {
			t.Errorf("%s: payload differs", c.name)
		}
	}
}

func TestDecodeCorrupt(t *testing.T) {
	z := zstdOf(t, fdt)
	if _, err := Decode(z[:len(z)/2]); err == nil {
		t.Fatal("truncated zstd accepted")
	}
	l := lz4Of(t, fdt)
	if _, err := Decode(l[:len(l)/2]); err == nil {
		t.Fatal("truncated lz4 accepted")
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "board.dtb.lz4")
	if err := os.WriteFile(p, lz4Of(t, fdt), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := Load(p)
	if err != nil || !bytes.Equal(out, fdt) {
		t.Fatalf("Load: %v", err)
	}
}
