package pl011

import (
	"bytes"
	"io"
	"testing"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/types"
)

var _ driver.Serial = (*Port)(nil)

func TestDivisors(t *testing.T) {
	cases := []struct {
		clk        uint64
		baud       uint32
		ibrd, fbrd uint32
	}{
		{24000000, 115200, 13, 1},
		{48000000, 115200, 26, 3},
		{3686400, 9600, 24, 0},
	}
	for _, tc := range cases {
		i, f, err := Divisors(tc.clk, tc.baud)
		if err != nil || i != tc.ibrd || f != tc.fbrd {
			t.Errorf("Divisors(%d, %d) = %d, %d, %v", tc.clk, tc.baud, i, f, err)
		}
	}
	if _, _, err := Divisors(1000, 115200); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("unreachable baud accepted: %v", err)
	}
}

func TestTxRxHalves(t *testing.T) {
	var sink bytes.Buffer
	p := New(types.Descriptor{Name: "pl011"}, nil, 0x09000000, 24000000, Options{Sink: &sink, RingSize: 8})
	if err := p.Open(); err != nil {
		t.Fatal(err)
	}
	if i, f := p.Divisor(); i != 13 || f != 1 {
		t.Fatalf("divisor %d/%d", i, f)
	}

	tx := p.TakeTx()
	if tx == nil || p.TakeTx() != nil {
		t.Fatal("tx half not exclusive")
	}
	if _, err := io.WriteString(tx, "hello, longer than the ring"); err != nil {
		t.Fatal(err)
	}
	if sink.String() != "hello, longer than the ring" {
		t.Fatalf("sink = %q", sink.String())
	}
	_ = tx.Close()
	if p.TakeTx() == nil {
		t.Fatal("tx half not returned on Close")
	}

	rx := p.TakeRx()
	if n := p.Inject([]byte("abc")); n != 3 {
		t.Fatalf("inject %d", n)
	}
	p.HandleIRQ()
	buf := make([]byte, 8)
	n, err := rx.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("read %q, %v", buf[:n], err)
	}
	_ = rx.Close()
	if _, err := rx.Read(buf); err != io.EOF {
		t.Fatalf("read after close: %v", err)
	}
}
