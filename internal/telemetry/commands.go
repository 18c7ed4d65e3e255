package telemetry

import (
	"errors"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/mqtt"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// Subscriber registers MQTT handlers. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Triggerer accepts manual trigger requests. *trigger.Controller implements it.
type Triggerer interface {
	Trigger(source string) error
}

// SubscribeTrigger starts a scene for every message on the command/trigger
// topic. Requests outside the Armed state are logged and dropped.
func SubscribeTrigger(sub Subscriber, topics mqtt.Topics, trig Triggerer, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	return sub.Subscribe(topics.CommandTrigger(), 1, func(topic string, _ []byte) error {
		err := trig.Trigger(trigger.SourceMQTT)
		if errors.Is(err, trigger.ErrNotArmed) {
			logger.Debug("remote trigger ignored, not armed", "topic", topic)
			return nil
		}
		return err
	})
}
