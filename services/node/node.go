// Package node runs one boot of a smoke node: it brings up the bus and the
// supporting services, waits for the mesh, hands the wake decision to the
// controller and puts the board back to sleep. Always-on nodes repeat the
// cycle without leaving the process.
package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"smokenode/bus"
	"smokenode/drivers/battadc"
	"smokenode/errcode"
	"smokenode/services/bridge"
	"smokenode/services/config"
	"smokenode/services/hal"
	"smokenode/services/heartbeat"
	"smokenode/services/mesh"
	"smokenode/services/ncp"
	"smokenode/services/report"
	"smokenode/services/wake"
	"smokenode/services/watchdog"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

var TopicState = bus.T("node", "state")

// Result describes how one wake cycle ended.
type Result struct {
	Boot    uint32
	Cause   types.WakeCause
	Outcome wake.Outcome // zero when the controller did not run
	Plan    types.SleepPlan
	Forced  bool // the watchdog took the sleep gate
	Retry   bool // the stack failed to initialise
}

type Node struct {
	Board  *hal.Board
	Device string            // embedded config key
	Config *types.NodeConfig // used instead of the embedded config when set
	Clock  timex.Clock
	Log    logx.Logger

	// OnCycle, when set, sees every finished cycle before the board sleeps.
	OnCycle func(Result)

	boots uint32
}

func (n *Node) logger(prefix string) logx.Logger { return logx.Named(n.Log, prefix) }

// Run performs one boot. On hardware the final DeepSleep does not return; on
// simulated boards Run returns the cycle's Result once the board has slept.
// In always-on mode Run keeps cycling until ctx ends and returns the last
// Result. Errors are platform failures the caller should halt on.
func (n *Node) Run(ctx context.Context) (Result, error) {
	log := logx.Or(n.Log)
	if err := n.Board.Validate(); err != nil {
		return Result{}, errcode.Wrap(errcode.PlatformInit, "node.board", err)
	}
	n.boots++

	// Every goroutine started below ends with ctx. The sleep gate cancels it
	// before the board goes down.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bus.NewBus(32)
	conn := b.NewConnection("node")

	cfg, err := n.loadConfig(ctx, b.NewConnection("config"))
	if err != nil {
		return Result{}, err
	}
	sleepy := cfg.Mode != types.ModeAlwaysOn

	cause := n.Board.Sleep.WakeCause()
	st, valid := n.Board.Store.Load()
	if !valid {
		log.Info("retained region empty, using defaults", "cause", cause)
	}
	log.Info("boot", "n", n.boots, "board", n.Board.Name, "cause", cause, "alarm", st.AlarmActive, "mode", cfg.Mode)

	// links tracks goroutines holding a peripheral; they must let go before
	// the board powers down.
	var links sync.WaitGroup
	gate := watchdog.NewGate(func(plan types.SleepPlan, forced bool) {
		cancel()
		release(&links, linkRelease)
		hal.ArmPlan(n.Board.Sleep, cfg.SmokePin, plan)
		n.Board.Sleep.DeepSleep()
	})
	var wd *watchdog.Service
	if sleepy && !cfg.Watchdog.Disabled {
		wd = &watchdog.Service{
			Budget: timex.Millis(cfg.Watchdog.BudgetMS),
			Plan:   types.SleepPlan{Seconds: cfg.Sleep.ShortS},
			Gate:   gate,
			Uptime: n.Board.Uptime,
			Log:    n.logger("watchdog"),
		}
		if err := wd.Start(ctx, b.NewConnection("watchdog")); err != nil {
			return Result{}, err
		}
	}
	deadline := func() (context.Context, context.CancelFunc) {
		if wd == nil {
			return context.WithCancel(ctx)
		}
		return wd.Deadline(ctx)
	}

	stack, uplink, err := n.openStack(ctx, cfg, &links)
	if err != nil {
		return Result{}, err
	}
	go bridge.New(b.NewConnection("bridge"), uplink, n.logger("bridge")).Run(ctx)

	ms := &mesh.Service{
		Stack:    stack,
		Zigbee:   cfg.Zigbee,
		Identity: cfg.Identity,
		Log:      n.logger("mesh"),
	}
	if err := ms.Start(ctx, b.NewConnection("mesh")); err != nil {
		return Result{}, err
	}

	bat := battadc.New(n.Board.ADC, cfg.Battery)
	if !sleepy {
		hb := &heartbeat.Service{Uptime: n.Board.Uptime, Battery: bat, Log: n.logger("heartbeat")}
		if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
			return Result{}, err
		}
	}

	res := Result{Boot: n.boots, Cause: cause}
	jctx, jcancel := deadline()
	err = ms.WaitJoined(jctx)
	jcancel()
	switch errcode.Of(err) {
	case errcode.OK:
	case errcode.StackInit:
		log.Warn("stack initialisation failed, retrying after sleep", "retry_s", cfg.Sleep.RetryS)
		res.Retry = true
		return n.sleep(gate, res, types.SleepPlan{Seconds: cfg.Sleep.RetryS}), nil
	default:
		if wd == nil {
			return res, err
		}
		// The join window is the awake budget: the watchdog is about to fire.
		// Entering after it returns once its sleep has completed.
		<-gate.Done()
		return n.sleep(gate, res, types.SleepPlan{Seconds: cfg.Sleep.ShortS}), nil
	}

	ctl := wake.New(wake.ConfigFrom(cfg), n.Board.Smoke, bat, report.NewPublisher(conn), n.Clock, n.logger("wake"))

	for {
		dctx, dcancel := deadline()
		out := ctl.Decide(dctx, cause, st)
		dcancel()
		res.Outcome = out
		log.Info("decided", "cause", cause, "alarm", out.State.AlarmActive, "reports", out.Reports,
			"sleep_s", out.Plan.Seconds, "pin_wake", out.Plan.PinWake, "kept", out.Kept)

		// A forced sleep has already happened: nothing after it may touch
		// the retained region or the radio.
		select {
		case <-gate.Done():
			log.Warn("watchdog slept first, decision dropped")
			return n.sleep(gate, res, out.Plan), nil
		default:
		}

		if err := n.Board.Store.Store(out.State); err != nil {
			return res, errcode.Wrap(errcode.Storage, "node.retain", err)
		}
		if out.Reports > 0 {
			n.flush(conn, cfg.Sleep.FlushMS, deadline)
		}
		n.publishState(conn, res, out)

		if sleepy {
			return n.sleep(gate, res, out.Plan), nil
		}

		// Always on: the sleep controller blocks until the next wake.
		if n.OnCycle != nil {
			res.Plan = out.Plan
			n.OnCycle(res)
		}
		hal.ArmPlan(n.Board.Sleep, cfg.SmokePin, out.Plan)
		n.Board.Sleep.DeepSleep()
		if ctx.Err() != nil {
			return res, nil
		}
		cause, st = n.Board.Sleep.WakeCause(), out.State
		res.Cause = cause
		res.Outcome = wake.Outcome{}
	}
}

// sleep takes the gate with plan. If the watchdog got there first its plan
// stands.
func (n *Node) sleep(gate *watchdog.Gate, res Result, plan types.SleepPlan) Result {
	if n.OnCycle != nil {
		res.Plan = plan
		n.OnCycle(res)
	}
	gate.Enter(plan, false)
	res.Plan, res.Forced = gate.Taken()
	return res
}

func (n *Node) loadConfig(ctx context.Context, conn *bus.Connection) (types.NodeConfig, error) {
	if n.Config != nil {
		if err := config.Validate(*n.Config); err != nil {
			return types.NodeConfig{}, err
		}
		config.Publish(conn, *n.Config)
		return *n.Config, nil
	}
	ctx = context.WithValue(ctx, config.CtxDeviceKey, n.Device)
	return config.NewConfigService().Start(ctx, conn)
}

// openStack picks the mesh stack and the report uplink for the configured
// transport. Only the ncp transport has a radio behind it; the others
// commission instantly.
func (n *Node) openStack(ctx context.Context, cfg types.NodeConfig, links *sync.WaitGroup) (mesh.Stack, bridge.Uplink, error) {
	if cfg.Bridge.Transport != "ncp" {
		return mesh.NewLoopback(), nil, nil
	}
	if n.Board.Dial == nil {
		return nil, nil, errcode.Wrap(errcode.PlatformInit, "node.uplink", hal.ErrNoUplink)
	}
	rwc, err := n.Board.Dial(ctx, *cfg.Bridge.UART)
	if err != nil {
		return nil, nil, errcode.Wrap(errcode.StackInit, "node.uplink", err)
	}
	cl := ncp.NewClient(rwc, n.logger("ncp"))
	links.Add(1)
	go func() {
		defer links.Done()
		if err := cl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Or(n.Log).Warn("ncp link ended", "err", err)
		}
		_ = rwc.Close()
	}()
	return cl, cl, nil
}

// linkRelease bounds how long deep sleep waits for peripherals to close.
const linkRelease = 500 * time.Millisecond

func release(wg *sync.WaitGroup, max time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(max)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
	}
}

// flush asks the bridge to push the cycle's reports out and waits at most
// flushMS for it.
func (n *Node) flush(conn *bus.Connection, flushMS int, deadline func() (context.Context, context.CancelFunc)) {
	if flushMS <= 0 {
		flushMS = 1000
	}
	dctx, dcancel := deadline()
	defer dcancel()
	fctx, fcancel := context.WithTimeout(dctx, timex.Millis(flushMS)+100*time.Millisecond)
	defer fcancel()

	req := conn.NewMessage(bridge.TopicFlush, bridge.FlushRequest{TimeoutMS: flushMS}, false)
	rep, err := conn.RequestWait(fctx, req)
	log := logx.Or(n.Log)
	if err != nil {
		log.Warn("flush not acknowledged", "err", err)
		return
	}
	if r, ok := rep.Payload.(bridge.FlushResult); ok && r.Err != "" {
		log.Warn("flush incomplete", "err", r.Err, "forwarded", r.Forwarded)
	}
}

func (n *Node) publishState(conn *bus.Connection, res Result, out wake.Outcome) {
	conn.Publish(conn.NewMessage(TopicState, types.NodeState{
		Boot:    res.Boot,
		Cause:   res.Cause.String(),
		Alarm:   out.State.AlarmActive,
		Plan:    out.Plan,
		TS:      timex.NowMs(),
		Battery: out.State.LastBattery,
	}, true))
}
