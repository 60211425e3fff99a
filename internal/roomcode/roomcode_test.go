package roomcode

import "testing"

func TestNew(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		code := New()
		if got, ok := Parse(code); !ok || got != code {
			t.Fatalf("generated code %q does not parse", code)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "abcd", want: "ABCD", ok: true},
		{in: "  QWER\n", want: "QWER", ok: true},
		{in: "ABC"},
		{in: "ABCDE"},
		{in: "AB1D"},
		{in: "ÄBCD"},
	}

	for _, tc := range testCases {
		got, ok := Parse(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Parse(%q) = %q, %v, want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
