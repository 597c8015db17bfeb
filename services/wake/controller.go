// Package wake holds the per-boot decision: given the hardware wake cause and
// the retained state, what to report, what to retain and how to sleep next.
package wake

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"smokenode/services/hal"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/mathx"
	"smokenode/x/timex"
)

// Reporter is the outbound side of the mesh stack. Calls are best-effort.
type Reporter interface {
	SendAlarm(endpoint uint8, active bool)
	ReportAttribute(endpoint uint8, cluster, attr uint16, value []byte)
}

// Battery is the battery input as a tinygo sensor: Update(drivers.Voltage)
// takes one bounded sample, Voltage returns it in microvolts and Last the
// converted reading behind it.
type Battery interface {
	drivers.Sensor
	Voltage() int32
	Last() (types.BatteryReading, error)
}

// Config carries the timing the decision depends on.
type Config struct {
	Endpoint  uint8
	ShortS    uint32 // smoke recheck interval
	LongS     uint32 // battery update interval
	PollMax   int
	PollDelay time.Duration

	// BatteryRefresh forces a battery report on every Nth long wake even
	// when the level is unchanged. Zero disables it.
	BatteryRefresh uint8
}

// ConfigFrom extracts the controller settings from the node configuration.
func ConfigFrom(nc types.NodeConfig) Config {
	return Config{
		Endpoint:  nc.Zigbee.Endpoint,
		ShortS:    nc.Sleep.ShortS,
		LongS:     nc.Sleep.LongS,
		PollMax:   nc.Debounce.PollMax,
		PollDelay: timex.Millis(nc.Debounce.PollDelayMS),

		BatteryRefresh: nc.Sleep.BatteryRefresh,
	}
}

// Outcome is the result of one decision.
type Outcome struct {
	State   types.Retained
	Plan    types.SleepPlan
	Reports int                   // messages handed to the Reporter
	Battery *types.BatteryReading // nil when no sample was taken
	Kept    bool                  // alarm kept because the poll window ended early
}

type Controller struct {
	cfg   Config
	smoke hal.Pin
	bat   Battery
	rep   Reporter
	clk   timex.Clock
	log   logx.Logger
}

func New(cfg Config, smoke hal.Pin, bat Battery, rep Reporter, clk timex.Clock, log logx.Logger) *Controller {
	if clk == nil {
		clk = timex.System{}
	}
	return &Controller{cfg: cfg, smoke: smoke, bat: bat, rep: rep, clk: clk, log: logx.Or(log)}
}

func (c *Controller) short() types.SleepPlan { return types.SleepPlan{Seconds: c.cfg.ShortS} }
func (c *Controller) long() types.SleepPlan {
	return types.SleepPlan{Seconds: c.cfg.LongS, PinWake: true}
}

// Decide applies the wake policy. ctx bounds the debounce poll; it should
// carry the same deadline as the sleep watchdog.
func (c *Controller) Decide(ctx context.Context, cause types.WakeCause, st types.Retained) Outcome {
	out := Outcome{State: st}

	switch {
	case cause == types.WakeExternalPin && !st.AlarmActive:
		c.log.Warn("smoke detected", "ep", c.cfg.Endpoint)
		c.sendAlarm(&out, true)
		out.Plan = c.short()

	case cause == types.WakeExternalPin:
		c.log.Debug("alarm already active")
		out.Plan = c.short()

	case cause == types.WakeTimer && st.AlarmActive:
		high, complete := c.pollSmoke(ctx)
		switch {
		case high:
			c.log.Info("smoke still present")
			out.Plan = c.short()
		case !complete:
			c.log.Warn("debounce window cut short, keeping alarm")
			out.Kept = true
			out.Plan = c.short()
		default:
			c.log.Info("smoke cleared")
			c.sendAlarm(&out, false)
			out.Plan = c.long()
		}

	case cause == types.WakeTimer:
		c.reportBattery(&out, false)
		out.Plan = c.long()

	default:
		c.reportBattery(&out, true)
		c.sendAlarm(&out, false)
		out.Plan = c.long()
	}
	return out
}

// pollSmoke samples the smoke line up to PollMax times. high reports a high
// level at any point; complete is false when ctx ended first.
func (c *Controller) pollSmoke(ctx context.Context) (high, complete bool) {
	for i := 0; i < c.cfg.PollMax; i++ {
		if ctx.Err() != nil {
			return false, false
		}
		if c.smoke.Get() {
			c.log.Debug("smoke level high", "poll", i)
			return true, true
		}
		if !c.clk.Sleep(ctx, c.cfg.PollDelay) {
			return false, false
		}
	}
	return false, true
}

func (c *Controller) sendAlarm(out *Outcome, active bool) {
	c.rep.SendAlarm(c.cfg.Endpoint, active)
	out.State.AlarmActive = active
	out.Reports++
}

// reportBattery samples and reports the battery. Unless force is set, an
// unchanged level is reported again only once BatteryRefresh long wakes have
// gone by without a report.
func (c *Controller) reportBattery(out *Outcome, force bool) {
	if err := c.bat.Update(drivers.Voltage); err != nil {
		c.log.Error("battery sample failed", "err", err)
		return
	}
	r, err := c.bat.Last()
	if err != nil {
		c.log.Error("battery sample missing", "err", err)
		return
	}
	out.Battery = &r
	c.log.Info("battery", "raw", r.Raw, "volts", r.Volts, "pct", r.Percent, "reads", r.Attempts)
	if !force && r.Reported == out.State.LastBattery && !c.refreshDue(out.State) {
		if c.cfg.BatteryRefresh > 0 && out.State.Quiet < types.MaxQuiet {
			out.State.Quiet++
		}
		c.log.Debug("battery unchanged, not reported", "quiet", out.State.Quiet)
		return
	}
	c.rep.ReportAttribute(c.cfg.Endpoint, types.ClusterPowerConfig, types.AttrBatteryPctRemaining, []byte{r.Reported})
	c.rep.ReportAttribute(c.cfg.Endpoint, types.ClusterPowerConfig, types.AttrBatteryVoltage, []byte{deciVolts(c.bat.Voltage())})
	out.State.LastBattery = r.Reported
	out.State.Quiet = 0
	out.Reports += 2
}

func (c *Controller) refreshDue(st types.Retained) bool {
	n := c.cfg.BatteryRefresh
	return n > 0 && int(st.Quiet)+1 >= int(n)
}

// deciVolts converts microvolts to the 100 mV units of the BatteryVoltage
// attribute.
func deciVolts(uv int32) uint8 {
	dv := (int64(uv) + 50_000) / 100_000
	return uint8(mathx.Clamp(dv, 0, 255))
}
