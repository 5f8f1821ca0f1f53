package discord

import (
	"context"
	"testing"

	"github.com/pairgate/pairgate/internal/config"
)

func TestAdmitted(t *testing.T) {
	tests := []struct {
		name      string
		allowFrom []string
		channelID string
		want      bool
	}{
		{"empty list admits all", nil, "111222333", true},
		{"listed channel admitted", []string{"111222333"}, "111222333", true},
		{"unlisted channel rejected", []string{"111222333"}, "999888777", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New(config.DiscordConfig{AllowFrom: tc.allowFrom})
			if got := c.admitted(tc.channelID); got != tc.want {
				t.Errorf("admitted(%q) = %v, want %v", tc.channelID, got, tc.want)
			}
		})
	}
}

func TestUpdateAllowFrom(t *testing.T) {
	c := New(config.DiscordConfig{AllowFrom: []string{"111"}})
	if c.admitted("222") {
		t.Fatal("channel admitted before allow list update")
	}

	c.UpdateAllowFrom([]string{"222"})
	if !c.admitted("222") {
		t.Error("channel not admitted after allow list update")
	}
	if c.admitted("111") {
		t.Error("removed channel still admitted")
	}
}

func TestSendBeforeStart(t *testing.T) {
	c := New(config.DiscordConfig{})
	if err := c.SendText(context.Background(), "111", "hello"); err == nil {
		t.Error("expected error when sending before Start")
	}
	if err := c.SendImage(context.Background(), "111", []byte{1}, "cap"); err == nil {
		t.Error("expected error when sending image before Start")
	}
}
