// Command smoke-sim runs a smoke node through a series of simulated boots on
// the host. Each boot goes through the full firmware path: config, mesh join,
// wake decision, report flush and deep sleep.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"smokenode/services/config"
	"smokenode/services/hal"
	"smokenode/services/ncp"
	"smokenode/services/node"
	"smokenode/types"
	"smokenode/x/logx"
)

func main() {
	var (
		level      string
		device     string
		transport  string
		broker     string
		statePath  string
		boots      int
		smokeAt    int
		smokeClear int
		steerFail  int
		powerLoss  bool
	)
	flag.StringVar(&level, "level", "info", "Log level")
	flag.StringVar(&device, "device", "smoke-sim", "Embedded config to run")
	flag.StringVar(&transport, "transport", "", "Override the uplink: log, mqtt or ncp (emulated co-processor)")
	flag.StringVar(&broker, "broker", "", "Override the MQTT broker URL")
	flag.StringVar(&statePath, "state", "", "Keep the retained region in this file across runs")
	flag.IntVar(&boots, "boots", 6, "Number of boots to simulate")
	flag.IntVar(&smokeAt, "smoke-at", 2, "Boot at which the smoke line goes high (0 = never)")
	flag.IntVar(&smokeClear, "smoke-clear", 4, "Boot at which the smoke line drops again")
	flag.IntVar(&steerFail, "steer-fail", 0, "Steering attempts the emulated co-processor rejects")
	flag.BoolVar(&powerLoss, "power-loss", false, "Wipe the retained region before the first boot")
	flag.Parse()

	if err := logx.SetLevel(level); err != nil {
		fmt.Fprintln(os.Stderr, "bad -level:", err)
		os.Exit(2)
	}
	log := logx.New("sim")

	cfg, err := config.Load(device)
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}
	switch transport {
	case "":
	case "ncp":
		cfg.Bridge = types.BridgeConfig{Transport: "ncp", UART: &types.UARTConfig{ID: "uart1", Baud: 115200}}
	case "mqtt":
		if cfg.Bridge.MQTT == nil {
			cfg.Bridge.MQTT = &types.MQTTConfig{ClientID: device, Prefix: "smokenode", QoS: 1}
		}
		cfg.Bridge.Transport = "mqtt"
	default:
		cfg.Bridge = types.BridgeConfig{Transport: transport}
	}
	if broker != "" && cfg.Bridge.MQTT != nil {
		cfg.Bridge.MQTT.Broker = broker
	}
	if cfg.Mode == types.ModeAlwaysOn {
		// Simulated deep sleep returns at once; an always-on loop would spin.
		log.Warn("running always-on config as sleepy", "device", device)
		cfg.Mode = types.ModeSleepy
	}
	if err := config.Validate(cfg); err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sb := hal.NewSimBoard(cfg.SmokePin, types.WakeColdBoot)
	if statePath != "" {
		sb.Board.Store = hal.FileStore{Path: statePath}
	}
	if powerLoss {
		sb.Mem.PowerLoss()
		if statePath != "" {
			_ = os.Remove(statePath)
		}
	}
	emuLog := logx.New("ncp-emu")
	sb.Dial = hal.DialEmulator(func(e *ncp.Emulator) {
		e.SteeringFailures = steerFail
		e.Log = emuLog
	})

	n := &node.Node{Board: sb.Board, Config: &cfg, Log: logx.New("node")}
	var last hal.SleepRecord
	for i := 1; i <= boots && ctx.Err() == nil; i++ {
		sb.Pin.Set(smokeAt > 0 && i >= smokeAt && i < smokeClear)
		if i > 1 {
			sb.Reboot(sb.NextCause(last), false)
		}

		res, err := n.Run(ctx)
		if err != nil {
			log.Error("boot failed", "boot", i, "err", err)
			os.Exit(1)
		}
		log.Info("slept", "boot", res.Boot, "cause", res.Cause, "alarm", res.Outcome.State.AlarmActive,
			"reports", res.Outcome.Reports, "seconds", res.Plan.Seconds, "pin_wake", res.Plan.PinWake,
			"forced", res.Forced, "retry", res.Retry)

		entries := sb.Sleep.Entries()
		if len(entries) == 0 {
			log.Error("node did not sleep", "boot", i)
			os.Exit(1)
		}
		last = entries[len(entries)-1]
	}
}
