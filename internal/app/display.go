package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/control"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
)

// displayData holds the latest data for the panel
type displayData struct {
	mu sync.RWMutex

	sample     telemetry.Sample
	haveSample bool

	status     control.Status
	haveStatus bool
}

// RunDisplay drives a small I2C OLED with live pitch, motor output and
// loop state received over MQTT.
func RunDisplay() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not configured")
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-display")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	telToken := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: telemetry unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.sample = s
		data.haveSample = true
		data.mu.Unlock()
	})
	telToken.Wait()
	if telToken.Error() != nil {
		return telToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicTelemetry)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st control.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("display: status unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.status = st
		data.haveStatus = true
		data.mu.Unlock()
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicStatus)

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		sample := data.sample
		haveSample := data.haveSample
		status := data.status
		haveStatus := data.haveStatus
		data.mu.RUnlock()

		if err := updatePanel(dev, sample, haveSample, status, haveStatus); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func updatePanel(dev *ssd1306.Dev, s telemetry.Sample, haveSample bool, st control.Status, haveStatus bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveSample {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Balance"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("P: %6.2f", s.ActualAngle)))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("T: %6.2f", s.TargetAngle)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("M: %6.1f%%", s.MotorPercent)))

	if haveStatus {
		drawer.Dot = fixed.P(0, 52)
		line := st.State
		if st.Reason != "" {
			line += " " + st.Reason
		}
		if len(line) > 18 {
			line = line[:18]
		}
		drawer.DrawBytes([]byte(line))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Balance Robot"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("telemetry"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
