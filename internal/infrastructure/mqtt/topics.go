package mqtt

// Topic prefixes for dpmcore.
//
//	dpmcore/events/{kind}     transition, phase, callback and dvfs events
//	dpmcore/command/{name}    remote commands (transition, dvfs)
//	dpmcore/system/status     online/offline status (retained, LWT)
const (
	TopicPrefix        = "dpmcore"
	TopicPrefixEvents  = TopicPrefix + "/events"
	TopicPrefixCommand = TopicPrefix + "/command"
	TopicPrefixSystem  = TopicPrefix + "/system"
)

// Topics provides builders for dpmcore MQTT topics.
//
//	topic := mqtt.Topics{}.Event("callback")
//	// Returns: "dpmcore/events/callback"
type Topics struct{}

// Event returns the topic for an event of the given kind.
func (Topics) Event(kind string) string {
	return TopicPrefixEvents + "/" + kind
}

// Command returns the topic for a named remote command.
func (Topics) Command(name string) string {
	return TopicPrefixCommand + "/" + name
}

// SystemStatus returns the topic for online/offline status.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllEvents returns a wildcard matching every event topic.
func (Topics) AllEvents() string {
	return TopicPrefixEvents + "/#"
}

// AllCommands returns a wildcard matching every command topic.
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/+"
}
