package fixedclk

import (
	"testing"

	"drivercore-go/driver"
	"drivercore-go/errcode"
)

var _ driver.Clk = (*Clock)(nil)

func TestRate(t *testing.T) {
	c := New("apb_pclk", 24000000)
	if hz, err := c.Rate(0); err != nil || hz != 24000000 {
		t.Fatalf("Rate = %d, %v", hz, err)
	}
	if _, err := c.Rate(1); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("Rate(1): %v", err)
	}
	if err := c.SetRate(0, 24000000); err != nil {
		t.Fatal(err)
	}
	if err := c.SetRate(0, 1); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("SetRate changed a fixed clock: %v", err)
	}
}
