package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/control"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
)

// RunConsole subscribes to the daemon's MQTT topics and prints live
// telemetry and status lines until interrupted.
func RunConsole() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	telToken := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: telemetry unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[CTRL] angle=%6.2f° target=%6.2f° err=%6.2f  P=%7.2f I=%7.2f D=%7.2f  out=%7.2f motor=%6.1f%%\n",
			s.ActualAngle, s.TargetAngle, s.Error, s.PTerm, s.ITerm, s.DTerm, s.Output, s.MotorPercent,
		)
	})
	telToken.Wait()
	if telToken.Error() != nil {
		return telToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st control.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[STAT] state=%s cycles=%d faults=%d/%d overruns=%d",
			st.State, st.Cycles, st.SensorFaults, st.MotorFaults, st.Overruns,
		)
		if st.Reason != "" {
			fmt.Printf("  (%s)", st.Reason)
		}
		fmt.Println()
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
