// Package mqtt provides MQTT client connectivity for dpmcore.
//
// This package manages:
//   - Connection to the broker, with backoff retry on startup and
//     auto-reconnect afterwards
//   - Publishing transition, callback and DVFS events as JSON
//   - Subscriptions for remote commands, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	dpmcore/events/{kind}     transition_start, phase_end, callback, dvfs, command...
//	dpmcore/command/{name}    transition, dvfs
//	dpmcore/system/status     retained online/offline status
//
// # Usage
//
//	client, err := mqtt.ConnectWithRetry(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent("callback", report)
package mqtt
