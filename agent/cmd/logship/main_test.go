package main

import "testing"

func TestSplitLevel(t *testing.T) {
	cases := []struct {
		line, lvl, msg string
	}{
		{"warn: disk almost full", "warn", "disk almost full"},
		{"ERROR:boom", "ERROR", "boom"},
		{"plain line", "info", "plain line"},
		{"http://example.com: down", "info", "http://example.com: down"},
		{"note: not a level", "info", "note: not a level"},
	}
	for _, tc := range cases {
		lvl, msg := splitLevel(tc.line, "info")
		if lvl != tc.lvl || msg != tc.msg {
			t.Errorf("splitLevel(%q) = (%q, %q), want (%q, %q)", tc.line, lvl, msg, tc.lvl, tc.msg)
		}
	}
}
