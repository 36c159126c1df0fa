// Package realtime maps sessions to pub/sub channels and publishes events on
// them.
package realtime

import (
	"fmt"

	"garagelink/internal/domain"
)

const (
	// EventSessionEnded is sent on the per-session channel.
	EventSessionEnded = "session:ended"
	// EventActiveSessionEnded is sent on ActiveSessionsChannel.
	EventActiveSessionEnded = "session_ended"
	// ActiveSessionsChannel is watched by list views of in-progress sessions.
	ActiveSessionsChannel = "active-sessions"
)

// ChannelRule names the channel a modality's clients listen on.
type ChannelRule struct {
	Pattern string
	Event   string
}

// Chat clients and video/diagnostic clients were built against different
// channel formats. Both are still subscribed to in production.
var channelRules = map[string]ChannelRule{
	domain.ModalityChat:       {Pattern: "session-%s", Event: EventSessionEnded},
	domain.ModalityVideo:      {Pattern: "session:%s", Event: EventSessionEnded},
	domain.ModalityDiagnostic: {Pattern: "session:%s", Event: EventSessionEnded},
}

// ChannelFor returns the per-session channel and event name. Unknown
// modalities fall back to the video format.
func ChannelFor(modality, sessionID string) (channel, event string) {
	rule, ok := channelRules[modality]
	if !ok {
		rule = channelRules[domain.ModalityVideo]
	}
	return fmt.Sprintf(rule.Pattern, sessionID), rule.Event
}

// SessionChannels lists every channel a participant of the session may
// subscribe to.
func SessionChannels(modality, sessionID string) []string {
	ch, _ := ChannelFor(modality, sessionID)
	return []string{ch, ActiveSessionsChannel}
}
