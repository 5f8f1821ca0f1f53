package bot

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/pair +4917012345678", "/pair", []string{"+4917012345678"}, true},
		{"/pair +49 170 1234567", "/pair", []string{"+49", "170", "1234567"}, true},
		{"/qr", "/qr", nil, true},
		{"/QR", "/qr", nil, true},
		{"/cancel@pairgate_bot", "/cancel", nil, true},
		{"  /status  ", "/status", nil, true},
		{"hello there", "", nil, false},
		{"", "", nil, false},
		{"pair +49170", "", nil, false},
	}
	for _, tc := range tests {
		cmd, ok := parseCommand(tc.text)
		if ok != tc.wantOK {
			t.Errorf("parseCommand(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if cmd.name != tc.wantName {
			t.Errorf("parseCommand(%q) name = %q, want %q", tc.text, cmd.name, tc.wantName)
		}
		if len(cmd.args) != len(tc.wantArgs) {
			t.Errorf("parseCommand(%q) args = %v, want %v", tc.text, cmd.args, tc.wantArgs)
			continue
		}
		for i := range cmd.args {
			if cmd.args[i] != tc.wantArgs[i] {
				t.Errorf("parseCommand(%q) args[%d] = %q, want %q", tc.text, i, cmd.args[i], tc.wantArgs[i])
			}
		}
	}
}

func TestCommandListCoversSurface(t *testing.T) {
	list := commandList()
	for _, cmd := range []string{"/pair", "/qr", "/status", "/resume", "/cancel", "/help"} {
		if !strings.Contains(list, cmd) {
			t.Errorf("command list is missing %s", cmd)
		}
	}
}

func TestGreetingIncludesCommands(t *testing.T) {
	if !strings.Contains(greeting(), commandList()) {
		t.Error("greeting should embed the command list")
	}
}
