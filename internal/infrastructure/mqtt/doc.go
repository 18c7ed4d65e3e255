// Package mqtt provides MQTT client connectivity for the Hüttenzauber controller.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained online/offline status with Last Will and Testament (LWT)
//   - Publishing scene and effect events
//   - The remote trigger command subscription
//
// MQTT is optional. The controller runs scenes without a broker; when one is
// configured, house automation and dashboards observe the installation through it.
//
// # Topics
//
//	huettenzauber/{installation}/status          retained, LWT
//	huettenzauber/{installation}/trigger/state   retained
//	huettenzauber/{installation}/scene/started
//	huettenzauber/{installation}/scene/finished
//	huettenzauber/{installation}/effect/{name}
//	huettenzauber/{installation}/command/trigger  subscribed
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Installation.ID, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.NewTopics(cfg.Installation.ID).SceneStarted(), event, false)
package mqtt
