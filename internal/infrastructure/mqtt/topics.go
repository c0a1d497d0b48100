package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefixDevice is the base for device presence topics.
const TopicPrefixDevice = "shadowsync/devices"

// Topics provides builders for device shadow topics.
//
// Shadow topics follow the scheme
// {prefix}/things/{thing}/shadow/{action}[/{result}]:
//
//	topics := mqtt.Topics{Prefix: "$aws"}
//	topics.ShadowUpdateDelta("lab-board-7")
//	// Returns: "$aws/things/lab-board-7/shadow/update/delta"
//
// An empty Prefix omits the leading segment.
type Topics struct {
	Prefix string
}

func (t Topics) shadow(thing, suffix string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("things/%s/shadow/%s", thing, suffix)
	}
	return fmt.Sprintf("%s/things/%s/shadow/%s", prefix, thing, suffix)
}

// =============================================================================
// Shadow Update
// =============================================================================

// ShadowUpdate returns the topic reports are published to.
func (t Topics) ShadowUpdate(thing string) string {
	return t.shadow(thing, "update")
}

// ShadowUpdateAccepted returns the topic on which accepted updates are acknowledged.
func (t Topics) ShadowUpdateAccepted(thing string) string {
	return t.shadow(thing, "update/accepted")
}

// ShadowUpdateRejected returns the topic on which rejected updates are acknowledged.
func (t Topics) ShadowUpdateRejected(thing string) string {
	return t.shadow(thing, "update/rejected")
}

// ShadowUpdateDelta returns the topic carrying desired/reported differences.
func (t Topics) ShadowUpdateDelta(thing string) string {
	return t.shadow(thing, "update/delta")
}

// =============================================================================
// Presence
// =============================================================================

// Presence returns the retained online/offline topic for a client.
//
// Example: shadowsync/devices/lab-board-7/status
func (Topics) Presence(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, clientID)
}
