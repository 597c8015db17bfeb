//go:build linux

// Command smoke-rpi runs an always-on smoke node on a Raspberry Pi bench rig.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smokenode/errcode"
	"smokenode/services/config"
	"smokenode/services/hal"
	"smokenode/services/node"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

func main() {
	level := flag.String("level", "info", "Log level")
	device := flag.String("device", "smoke-bench", "Embedded config to run")
	iio := flag.String("iio", "/sys/bus/iio/devices/iio:device0", "IIO device of the battery ADC")
	state := flag.String("state", "/var/lib/smokenode/retained", "Retained state file")
	uart := flag.String("uart", "", "Serial device of the mesh co-processor")
	flag.Parse()

	if err := logx.SetLevel(*level); err != nil {
		fmt.Fprintln(os.Stderr, "bad -level:", err)
		os.Exit(2)
	}
	log := logx.New("rpi")

	cfg, err := config.Load(*device)
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}
	if cfg.Mode != types.ModeAlwaysOn {
		log.Warn("the rig cannot deep sleep, running always-on", "device", *device)
		cfg.Mode = types.ModeAlwaysOn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board, err := hal.NewRPiBoard(ctx, hal.RPiConfig{
		SmokePin:  cfg.SmokePin,
		IIODevice: *iio,
		StatePath: *state,
		Debounce:  time.Duration(cfg.Debounce.PollDelayMS) * time.Millisecond,
		UARTPath:  *uart,
	})
	if err != nil {
		log.Error("board", "err", err)
		os.Exit(1)
	}

	n := &node.Node{Board: board, Config: &cfg, Log: logx.New("node")}
	for ctx.Err() == nil {
		res, err := n.Run(ctx)
		switch {
		case errcode.Fatal(err):
			log.Error("node stopped", "err", err, "code", errcode.Of(err))
			os.Exit(1)
		case err != nil:
			log.Warn("cycle failed, retrying", "err", err, "retry_s", cfg.Sleep.RetryS)
			timex.System{}.Sleep(ctx, timex.Seconds(cfg.Sleep.RetryS))
			continue
		}
		if res.Retry {
			log.Warn("stack start failed, retrying")
		}
	}
}
