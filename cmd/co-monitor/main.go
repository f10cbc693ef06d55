// Command co-monitor runs the CO safety monitor: it samples the gas
// sensor, drives the ventilation door and alarm, and reports to an MQTT
// broker, buffering telemetry across outages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/co-monitor/internal/buzzer"
	"github.com/sweeney/co-monitor/internal/door"
	"github.com/sweeney/co-monitor/internal/gpio"
	"github.com/sweeney/co-monitor/internal/mqtt"
	"github.com/sweeney/co-monitor/internal/notify"
	"github.com/sweeney/co-monitor/internal/safety"
	"github.com/sweeney/co-monitor/internal/sensor"
	"github.com/sweeney/co-monitor/internal/status"
	"github.com/sweeney/co-monitor/internal/telemetry"
	"github.com/sweeney/co-monitor/internal/web"
)

// options collects the flag values handed to run.
type options struct {
	broker         string
	topicPrefix    string
	clientID       string
	sample         time.Duration
	threshold      float64
	selfTest       time.Duration
	doorOpen       time.Duration
	statusInterval time.Duration
	initRetries    int
	reconnect      time.Duration
	chip           string
	pinButton      int
	pinSafeLED     int
	pinAlarmLED    int
	pinBuzzer      int
	adcPath        string
	pwmDir         string
	minPulseUS     int
	maxPulseUS     int
	httpAddr       string
	printReading   bool
}

func main() {
	var o options
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.topicPrefix, "topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	flag.StringVar(&o.clientID, "client-id", "", "MQTT client ID (default derived from machine ID)")
	flag.DurationVar(&o.sample, "sample", 500*time.Millisecond, "CO sampling interval")
	flag.Float64Var(&o.threshold, "threshold", 35, "CO alarm threshold in ppm")
	flag.DurationVar(&o.selfTest, "self-test", 3*time.Second, "Self-test duration on boot")
	flag.DurationVar(&o.doorOpen, "door-open", 5*time.Second, "Door auto-close delay")
	flag.DurationVar(&o.statusInterval, "status-interval", 30*time.Second, "Retained status publish interval")
	flag.IntVar(&o.initRetries, "init-retries", 3, "Broker connection attempts before background retry")
	flag.DurationVar(&o.reconnect, "reconnect", 5*time.Second, "Background reconnect delay")
	flag.StringVar(&o.chip, "gpio-chip", gpio.DefaultChip, "GPIO character device")
	flag.IntVar(&o.pinButton, "pin-button", gpio.DefaultPinButton, "BCM pin for the door button")
	flag.IntVar(&o.pinSafeLED, "pin-safe-led", gpio.DefaultPinSafeLED, "BCM pin for the safe indicator")
	flag.IntVar(&o.pinAlarmLED, "pin-alarm-led", gpio.DefaultPinAlarmLED, "BCM pin for the alarm indicator")
	flag.IntVar(&o.pinBuzzer, "pin-buzzer", gpio.DefaultPinBuzzer, "BCM pin for the buzzer")
	flag.StringVar(&o.adcPath, "adc", "/sys/bus/iio/devices/iio:device0/in_voltage0_raw", "IIO raw channel for the CO sensor")
	flag.StringVar(&o.pwmDir, "pwm", "/sys/class/pwm/pwmchip0/pwm0", "Exported pwmchip channel for the door servo")
	flag.IntVar(&o.minPulseUS, "min-pulse", door.DefaultMinUS, "Servo pulse width at 0 degrees (us)")
	flag.IntVar(&o.maxPulseUS, "max-pulse", door.DefaultMaxUS, "Servo pulse width at 180 degrees (us)")
	flag.StringVar(&o.httpAddr, "http", ":8080", "HTTP diagnostics address (empty to disable)")
	flag.BoolVar(&o.printReading, "print-reading", false, "Print one CO reading and exit")
	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	if o.printReading {
		reader, err := sensor.NewRealReader(o.adcPath)
		if err != nil {
			return fmt.Errorf("init sensor: %w", err)
		}
		defer reader.Close()
		raw, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Println(formatReading(raw))
		return nil
	}

	// Core first: the store and channels exist before any producer task.
	start := time.Now()
	core := safety.NewCore()
	tracker := status.NewTracker(start, status.Config{
		SampleMs:       o.sample.Milliseconds(),
		ThresholdPPM:   o.threshold,
		SelfTestMs:     o.selfTest.Milliseconds(),
		DoorOpenMs:     o.doorOpen.Milliseconds(),
		DebounceMs:     door.DebounceWindow.Milliseconds(),
		Broker:         o.broker,
		TopicPrefix:    o.topicPrefix,
		HTTPAddr:       o.httpAddr,
		BufferCapacity: telemetry.DefaultCapacity,
	})

	// Hardware. Each failure degrades its subsystem only: the machine
	// and its peers are nil-safe around missing peripherals.
	safeLED := openOutput(o.chip, o.pinSafeLED, "safe LED")
	alarmLED := openOutput(o.chip, o.pinAlarmLED, "alarm LED")
	buzzerOut := openOutput(o.chip, o.pinBuzzer, "buzzer")

	var servo door.Servo
	if s, err := door.NewSysfsServo(o.pwmDir); err != nil {
		log.Printf("init servo: %v (door disabled)", err)
	} else {
		servo = s
		defer s.Close()
	}
	actuator := door.NewActuator(door.Config{
		MinPulseUS: o.minPulseUS,
		MaxPulseUS: o.maxPulseUS,
	}, servo, core)

	var button door.Button
	if b, err := door.NewRealButton(o.chip, o.pinButton); err != nil {
		log.Printf("init button: %v (button disabled)", err)
	} else {
		button = b
		defer b.Close()
	}

	var reader sensor.Reader
	if r, err := sensor.NewRealReader(o.adcPath); err != nil {
		log.Printf("init sensor: %v (sampling disabled)", err)
	} else {
		reader = r
		defer r.Close()
	}

	// Tasks.
	annunciator := buzzer.New(buzzerOut, nil)
	dispatcher := notify.NewDispatcher(notify.LogNotifier{})

	var monitor *sensor.Monitor
	if reader != nil {
		monitor = sensor.NewMonitor(sensor.Config{
			Interval:     o.sample,
			ThresholdPPM: o.threshold,
			Start:        start,
		}, reader, core)
	}

	machineCfg := safety.Config{
		InitDuration: o.selfTest,
		DoorOpenTime: o.doorOpen,
		Start:        start,
	}
	if monitor != nil {
		machineCfg.CurrentPPM = monitor.LastPPM
	}
	var doorCtl safety.DoorControl
	if servo != nil {
		doorCtl = actuator
	}
	machine := safety.NewMachine(machineCfg, core, safety.Outputs{
		Door:      doorCtl,
		SafeLamp:  lampOrNil(safeLED),
		AlarmLamp: lampOrNil(alarmLED),
		Sounder:   annunciator,
		Notifier:  dispatcher,
	})

	client := mqtt.NewClient(mqtt.Config{
		Broker:           o.broker,
		ClientIDOverride: o.clientID,
		Topics:           mqtt.TopicsFor(o.topicPrefix),
		InitRetries:      o.initRetries,
		ReconnectDelay:   o.reconnect,
		Sink: mqtt.CommandSink{
			Events: core.Events,
			OnTest: func() { annunciator.Pulse(time.Second) },
		},
		Tracker: tracker,
	})
	defer client.Close()

	buf := telemetry.NewBuffer(telemetry.DefaultCapacity)
	agent := telemetry.NewAgent(telemetry.Config{
		StatusInterval: o.statusInterval,
	}, core, buf, telemetry.Link{Pub: client, Status: client, Conn: client}, tracker)

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http diagnostics on %s", o.httpAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go machine.Run(ctx)
	go annunciator.Run(ctx)
	go dispatcher.Run(ctx)
	go agent.Run(ctx)
	if monitor != nil {
		go monitor.Run(ctx)
	}
	if button != nil {
		go button.Watch(ctx, actuator)
	}

	if err := client.Connect(); err != nil {
		log.Printf("mqtt: %v", err)
	}

	log.Printf("started: broker=%s prefix=%s sample=%v threshold=%.1fppm",
		o.broker, o.topicPrefix, o.sample, o.threshold)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	log.Printf("received %v, shutting down", s)

	cancel()
	// client.Close (deferred) publishes the retained offline status
	// before disconnecting; gpio closes drive the lines low.
	closeOutput(safeLED)
	closeOutput(alarmLED)
	closeOutput(buzzerOut)
	return nil
}

// openOutput requests an output line, logging and returning nil on
// failure so the daemon runs degraded without it.
func openOutput(chip string, pin int, name string) gpio.Output {
	out, err := gpio.NewRealOutput(chip, pin)
	if err != nil {
		log.Printf("init %s: %v (disabled)", name, err)
		return nil
	}
	return out
}

func closeOutput(out gpio.Output) {
	if out == nil {
		return
	}
	if err := out.Close(); err != nil {
		log.Printf("close output: %v", err)
	}
}

// lampOrNil adapts a possibly-nil gpio output to the machine's Lamp
// interface without wrapping nil in a non-nil interface value.
func lampOrNil(out gpio.Output) safety.Lamp {
	if out == nil {
		return nil
	}
	return out
}

// formatReading renders one raw sample for -print-reading.
func formatReading(raw int) string {
	return fmt.Sprintf("raw=%d co=%.2f ppm", raw, sensor.PPM(raw))
}
