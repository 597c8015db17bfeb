package main

import (
	"context"
	"time"

	"smokenode/errcode"
	"smokenode/services/config"
	"smokenode/services/hal"
	"smokenode/services/node"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

// deviceID selects the embedded config; override with
// -ldflags "-X main.deviceID=...".
var deviceID = "smoke-rp2"

func main() {
	log := logx.New("node")
	ctx := context.Background()

	cfg, err := config.Load(deviceID)
	if err != nil {
		halt(log, err)
	}
	board, err := hal.Default(cfg.SmokePin)
	if err != nil {
		halt(log, err)
	}
	cfg.Mode = modeFor(board, cfg.Mode, log)

	n := &node.Node{Board: board, Config: &cfg, Log: log}
	for {
		res, err := n.Run(ctx)
		switch {
		case errcode.Fatal(err):
			halt(log, err)
		case err != nil:
			log.Warn("boot failed, retrying", "err", err, "retry_s", cfg.Sleep.RetryS)
			timex.System{}.Sleep(ctx, timex.Seconds(cfg.Sleep.RetryS))
			continue
		}
		// Real boards reset out of deep sleep and never get here. Simulated
		// ones stop after one boot; always-on ones come back only to retry
		// a failed stack start.
		if cfg.Mode != types.ModeAlwaysOn || !res.Retry {
			log.Info("slept", "seconds", res.Plan.Seconds, "pin_wake", res.Plan.PinWake, "forced", res.Forced)
			return
		}
	}
}

// modeFor runs always-on configs as sleepy on a simulated board, whose deep
// sleep returns at once.
func modeFor(board *hal.Board, mode string, log logx.Logger) string {
	if mode == types.ModeAlwaysOn && board.Name == hal.SimName {
		log.Warn("running always-on config as sleepy", "board", board.Name)
		return types.ModeSleepy
	}
	return mode
}

// halt parks the firmware after a platform failure. The hardware watchdog
// is not running, so the node stays down until power cycled.
func halt(log logx.Logger, err error) {
	log.Error("fatal", "err", err, "code", errcode.Of(err))
	for {
		time.Sleep(time.Hour)
	}
}
