package domain

import "testing"

func TestFormatName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"John Doe (JD)", "JD"},
		{"Jane", "Jane"},
		{"", ""},
		{"Tor (ต่อ)", "ต่อ"},
		{"Broken (", "Broken ("},
		{"Empty () then (E)", "E"},
		{"Only ()", "Only ()"},
		{"Two (A) (B)", "A"},
	}
	for _, tc := range cases {
		if got := FormatName(tc.in); got != tc.want {
			t.Fatalf("FormatName(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
