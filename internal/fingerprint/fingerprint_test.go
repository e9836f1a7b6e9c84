package fingerprint

import (
	"strings"
	"testing"
)

func TestOf_Stable(t *testing.T) {
	data := []byte("// TODO: one\n// FIXME: two\n")
	if Of(data) != Of(append([]byte(nil), data...)) {
		t.Error("fingerprint must be deterministic")
	}
}

func TestOf_DetectsSmallEdits(t *testing.T) {
	a := Of([]byte("// TODO: fix login"))
	b := Of([]byte("// TODO: fix logon"))
	if a == b {
		t.Error("short content is digested in full and must differ")
	}
}

func TestOf_LengthChangeAlwaysDetected(t *testing.T) {
	base := strings.Repeat("x", 10_000)
	if OfString(base) == OfString(base+"y") {
		t.Error("length change must change the fingerprint")
	}
}

func TestOf_AppendedLineDetected(t *testing.T) {
	base := strings.Repeat("line of code\n", 1000)
	edited := base[:len(base)-1] + "!"
	if OfString(base) == OfString(edited) {
		t.Error("edit of the last byte must change the fingerprint")
	}
}

func TestOf_Format(t *testing.T) {
	got := OfString("abc")
	if !strings.HasPrefix(got, "3:") {
		t.Errorf("fingerprint = %q, want length prefix", got)
	}
}

func TestOf_Empty(t *testing.T) {
	if got := Of(nil); !strings.HasPrefix(got, "0:") {
		t.Errorf("fingerprint = %q", got)
	}
}
