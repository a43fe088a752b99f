// Package mqtt provides MQTT client connectivity for homecore.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Ordered message delivery to handlers
//   - Topic subscriptions restored after reconnect
//   - Last Will and Testament on the status topic
//   - zigbee2mqtt topic builders (Topics)
//
// homecore talks to zigbee2mqtt over the broker:
//
//	homecore <-> broker <-> zigbee2mqtt <-> zigbee devices
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Base: "zigbee2mqtt"}
//	err = client.Subscribe(topics.All(), 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//	client.Publish(topics.Set("hall_lamp"), []byte(`{"state":"ON"}`), 1, false)
package mqtt
