package mqtt

// TopicPrefix is the root of every controller topic.
const TopicPrefix = "huettenzauber"

// Topics builds the MQTT topics of one installation, all below
// huettenzauber/{installation}/.
//
//	mqtt.NewTopics("huette-01").Effect("fog") // huettenzauber/huette-01/effect/fog
type Topics struct {
	installation string
	base         string
}

// NewTopics returns the topic builder for an installation ID.
func NewTopics(installationID string) Topics {
	return Topics{installation: installationID, base: TopicPrefix + "/" + installationID + "/"}
}

// Status is the retained presence topic, also used for the last will.
func (t Topics) Status() string { return t.base + "status" }

// SceneStarted carries one event per scene start.
func (t Topics) SceneStarted() string { return t.base + "scene/started" }

// SceneFinished carries one event per finished scene with its outcome.
func (t Topics) SceneFinished() string { return t.base + "scene/finished" }

// Effect carries the on/off transitions of one effect (fog, water, lighting).
func (t Topics) Effect(name string) string { return t.base + "effect/" + name }

// Trigger is the retained trigger controller state.
func (t Topics) Trigger() string { return t.base + "trigger/state" }

// CommandTrigger is where remote operators ask for a scene.
func (t Topics) CommandTrigger() string { return t.base + "command/trigger" }
