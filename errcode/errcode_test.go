package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":                 OK,
		"not_match":          NotMatch,
		"malformed_tree":     MalformedTree,
		"irq_parser_missing": IrqParserMissing,
		"used_by_others":     UsedByOthers,
		"used_by_unknown":    UsedByUnknown,
		"type_not_match":     TypeNotMatch,
		"device_released":    DeviceReleased,
		"not_found":          NotFound,
		"already_exists":     AlreadyExists,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOfWalksWrappedChain(t *testing.T) {
	if Of(nil) != OK {
		t.Fatal("nil should map to ok")
	}
	if got := Of(fmt.Errorf("probe uart: %w", NotMatch)); got != NotMatch {
		t.Fatalf("wrapped code: got %q", got)
	}
	e := Wrap(MalformedTree, "fdt.parse", errors.New("bad magic"))
	if got := Of(fmt.Errorf("outer: %w", e)); got != MalformedTree {
		t.Fatalf("wrapped *E: got %q", got)
	}
	if !errors.Is(e, MalformedTree) {
		t.Fatal("errors.Is should match the carried code")
	}
	if Of(errors.New("plain")) != Error {
		t.Fatal("plain errors should map to the generic code")
	}
}

func TestErrorText(t *testing.T) {
	e := &E{C: NotFound, Op: "device.get", Msg: "id 7"}
	if e.Error() != "device.get: not_found: id 7" {
		t.Fatalf("unexpected text %q", e.Error())
	}
}

func TestIsSoft(t *testing.T) {
	if !IsSoft(NotMatch) || !IsSoft(UsedByOthers) {
		t.Fatal("not_match and contention are soft")
	}
	if IsSoft(MalformedTree) || IsSoft(errors.New("x")) {
		t.Fatal("hard errors reported soft")
	}
}
