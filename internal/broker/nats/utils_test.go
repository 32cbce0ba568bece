package nats

import "testing"

func TestToNATSSubject(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"plain topic", "switchbot/commands", "switchbot.commands"},
		{"single-level wildcard", "switchbot/+/commands", "switchbot.*.commands"},
		{"multi-level wildcard", "switchbot/#", "switchbot.>"},
		{"single segment", "commands", "commands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToNATSSubject(tt.topic); got != tt.want {
				t.Errorf("ToNATSSubject(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}
