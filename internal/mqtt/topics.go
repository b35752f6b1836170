package mqtt

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/cyncd/internal/cync"
)

// Topics builds and parses the bridge's topic namespace:
//
//	<prefix>/<home>/<room|switch>/<id>/set     commands
//	<prefix>/<home>/switch/<id>/state          switch state reports
type Topics struct {
	Prefix string
}

// Command returns the topic a command is published on.
func (t Topics) Command(cmd cync.Command) string {
	return strings.Join([]string{t.Prefix, Segment(cmd.Home), string(cmd.Target), Segment(cmd.ID), "set"}, "/")
}

// StateFilter returns the subscription filter for switch state reports.
func (t Topics) StateFilter() string {
	return t.Prefix + "/+/" + string(cync.TargetSwitch) + "/+/state"
}

// ParseState extracts the device ID from a switch state topic.
func (t Topics) ParseState(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != t.Prefix || parts[2] != string(cync.TargetSwitch) || parts[4] != "state" || parts[3] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[3], nil
}

// Segment makes a name safe for use as one topic level.
func Segment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '_'
		}
		return r
	}, s)
}
