package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/control"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
)

// runPublisher mirrors the newest telemetry sample and the loop status to
// MQTT at its own cadence. It pulls from the ring rather than being
// called by the loop, so a slow broker can never back-pressure the
// control cycle.
func runPublisher(ctx context.Context, loop *control.Loop, ring *telemetry.Ring, cfg config.Config) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("publisher: MQTT connect error: %v", token.Error())
		return
	}
	defer client.Disconnect(250)
	log.Printf("publisher: connected to MQTT broker at %s", cfg.MQTTBroker)

	ticker := time.NewTicker(time.Duration(cfg.MQTTPublishInterval) * time.Millisecond)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Skip the publish when no new sample arrived since last tick.
		if ring.Total() == lastSeq {
			continue
		}
		lastSeq = ring.Total()

		latest := ring.Latest(1)
		if len(latest) == 1 {
			if payload, err := json.Marshal(latest[0]); err != nil {
				log.Printf("publisher: telemetry marshal error: %v", err)
			} else if token := client.Publish(cfg.TopicTelemetry, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("publisher: MQTT publish error (telemetry): %v", token.Error())
				continue
			}
		}

		if payload, err := json.Marshal(loop.Status()); err != nil {
			log.Printf("publisher: status marshal error: %v", err)
		} else if token := client.Publish(cfg.TopicStatus, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("publisher: MQTT publish error (status): %v", token.Error())
		}
	}
}
