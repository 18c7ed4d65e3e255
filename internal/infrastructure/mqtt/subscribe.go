package mqtt

import "fmt"

// Subscribe routes messages on topic to handler. The route is remembered
// and replayed after a reconnect; a failed subscribe leaves no route behind.
//
//	err := client.Subscribe(topics.CommandTrigger(), 1,
//	    func(string, []byte) error { return controller.Trigger("mqtt") })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	case !c.isConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.paho.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if token.WaitTimeout(defaultPublishTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("no suback within %v", defaultPublishTimeout)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.routes, topic)
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}
