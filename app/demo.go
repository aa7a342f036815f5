package app

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"warden/hal"
	"warden/wardenos/kernel"
	"warden/wardenos/report"
	"warden/wardenos/smp"
	"warden/wardenos/supervisor"
)

// Demo processes, least trusted first.
const (
	pidSensor  kernel.PID = 1
	pidControl kernel.PID = 2
	pidSafety  kernel.PID = 3
)

// Event priorities of core 0.
const (
	prioReport    kernel.Priority = 1
	prioBlink     kernel.Priority = 2
	prioControl   kernel.Priority = 4
	prioSample    kernel.Priority = 6
	prioButton    kernel.Priority = 7
	ceilTelemetry kernel.Priority = 8
	prioSupervise kernel.Priority = 11

	prioHeartbeat kernel.Priority = 3
)

const (
	procMemBytes   = 512
	procStackBytes = 1024
)

// memory is the static RAM of one core: a private block per process and one
// block every process may use.
type memory struct {
	proc   [kernel.NumProcesses + 1][procMemBytes]byte
	shared [procMemBytes]byte
}

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

func (m *memory) region(pid kernel.PID) kernel.Region {
	return kernel.Region{Base: addrOf(m.proc[pid][:]), Size: procMemBytes, Perm: kernel.PermRead | kernel.PermWrite}
}

func (m *memory) sharedRegion() kernel.Region {
	return kernel.Region{Base: addrOf(m.shared[:]), Size: procMemBytes, Perm: kernel.PermRead | kernel.PermWrite}
}

// telemetry is shared between the sensor and control processes.
type telemetry struct {
	samples uint64
	reads   uint64
}

// fault is one kind of misbehavior injected into the control process.
type fault uint8

const (
	faultWildWrite fault = iota
	faultNilDeref
	faultOverrun
	faultStackOverflow
	faultAbort

	numFaults = 5
)

func (f fault) String() string {
	switch f {
	case faultWildWrite:
		return "wild write"
	case faultNilDeref:
		return "nil dereference"
	case faultOverrun:
		return "deadline overrun"
	case faultStackOverflow:
		return "stack overflow"
	case faultAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// demo holds the state of the demo application on both cores.
type demo struct {
	cfg Config
	log hal.Logger
	led hal.LED

	mem       [2]*memory
	mpu       *mpuBackend
	telemetry *kernel.Shared[telemetry]
	sup       *supervisor.Supervisor
	rep       *report.Reporter

	button      kernel.Event
	heartbeatEv kernel.Event
	sys         *smp.System
	heartbeat   smp.Notification

	controlRuns uint64
	injected    atomic.Uint64
	blinks      uint64
	ledOn       bool
	beats       atomic.Uint64
	sink        uint64
}

func newDemo(cfg Config, h hal.HAL) *demo {
	return &demo{
		cfg:       cfg,
		log:       h.Logger(),
		led:       h.LED(),
		mem:       [2]*memory{new(memory), new(memory)},
		telemetry: kernel.NewShared(ceilTelemetry, telemetry{}),
		sup: supervisor.New(map[kernel.PID]supervisor.Policy{
			pidSensor:  {Fatal: []kernel.Cause{kernel.CauseStackOverflow}},
			pidControl: {Threshold: cfg.FailureThreshold},
		}, h.Logger()),
	}
}

func (d *demo) logf(format string, args ...any) {
	d.log.WriteLineString(fmt.Sprintf(format, args...))
}

// buildCore0 configures the main core: sensing, control, the button, the
// supervisor, reporting and the LED.
func (d *demo) buildCore0(b *kernel.Builder) error {
	mem := d.mem[0]
	for _, pid := range []kernel.PID{pidSensor, pidControl, pidSafety} {
		if err := b.ConfigureProcess(pid, kernel.ProcessConfig{
			StackSize: procStackBytes,
			Regions:   []kernel.Region{mem.region(pid)},
		}); err != nil {
			return fmt.Errorf("configure process %d: %w", pid, err)
		}
	}
	if err := b.GrantRunTask(pidSafety, pidSensor); err != nil {
		return err
	}
	for _, pid := range []kernel.PID{pidSensor, pidControl} {
		if err := b.GrantSuspendProcess(pidSafety, pid); err != nil {
			return err
		}
	}
	if err := b.RegisterInitTask(kernel.UserTask{Fn: d.initProcess, PID: pidSensor}); err != nil {
		return err
	}
	if err := b.RegisterInitTask(kernel.UserTask{Fn: d.initProcess, PID: pidControl}); err != nil {
		return err
	}

	budget := ms(d.cfg.TaskBudgetMS)
	type binding struct {
		ec   kernel.EventConfig
		task kernel.Task
	}
	bindings := []binding{
		{
			ec:   kernel.EventConfig{Cycle: ms(d.cfg.SamplePeriodMS), Priority: prioSample},
			task: kernel.UserTask{Fn: d.sample, PID: pidSensor, Budget: budget},
		},
		{
			ec:   kernel.EventConfig{Cycle: ms(d.cfg.ControlPeriodMS), FirstActivation: ms(1), Priority: prioControl},
			task: kernel.UserTask{Fn: d.control, PID: pidControl, Budget: budget},
		},
		{
			ec:   kernel.EventConfig{Cycle: ms(d.cfg.SupervisorPeriodMS), FirstActivation: ms(2), Priority: prioSupervise},
			task: kernel.UserTask{Fn: d.sup.Task, PID: pidSafety, Budget: budget},
		},
		{
			ec:   kernel.EventConfig{Cycle: ms(d.cfg.BlinkPeriodMS), Priority: prioBlink},
			task: kernel.OSTask{Fn: d.blink},
		},
		{
			ec:   kernel.EventConfig{Cycle: ms(d.cfg.ReportPeriodMS), FirstActivation: ms(d.cfg.ReportPeriodMS), Priority: prioReport},
			task: kernel.OSTask{Fn: d.report},
		},
	}
	for _, bd := range bindings {
		ev, err := b.CreateEvent(bd.ec)
		if err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if err := b.RegisterTask(ev, bd.task); err != nil {
			return fmt.Errorf("register task: %w", err)
		}
	}

	ev, err := b.CreateEvent(kernel.EventConfig{Priority: prioButton, MinTrigger: kernel.NotUserTriggerable})
	if err != nil {
		return fmt.Errorf("create button event: %w", err)
	}
	if err := b.RegisterUserTask(ev, d.onButton, pidSafety, budget); err != nil {
		return fmt.Errorf("register button task: %w", err)
	}
	d.button = ev
	return nil
}

// buildCore1 configures the second core: one process that counts heartbeats
// from core 0.
func (d *demo) buildCore1(b *kernel.Builder) (kernel.Event, error) {
	if err := b.ConfigureProcess(pidSensor, kernel.ProcessConfig{
		StackSize: procStackBytes,
		Regions:   []kernel.Region{d.mem[1].region(pidSensor)},
	}); err != nil {
		return kernel.Event{}, err
	}
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: prioHeartbeat, MinTrigger: kernel.NotUserTriggerable})
	if err != nil {
		return kernel.Event{}, err
	}
	if err := b.RegisterUserTask(ev, d.onHeartbeat, pidSensor, ms(d.cfg.TaskBudgetMS)); err != nil {
		return kernel.Event{}, err
	}
	return ev, nil
}

// initProcess clears the private memory of its process.
func (d *demo) initProcess(c *kernel.TaskContext, _ uintptr) int32 {
	buf := d.mem[0].proc[c.PID()][:]
	if !c.CheckWritePtr(addrOf(buf), uintptr(len(buf))) {
		return -1
	}
	clear(buf)
	return 0
}

// sample counts activations in the private memory of the sensor process and
// publishes the count.
func (d *demo) sample(c *kernel.TaskContext, _ uintptr) int32 {
	buf := d.mem[0].proc[pidSensor][:8]
	d.guardStore(c, buf)
	n := binary.LittleEndian.Uint64(buf) + 1
	binary.LittleEndian.PutUint64(buf, n)
	if err := d.telemetry.Access(c, func(t *telemetry) { t.samples = n }); err != nil {
		return -1
	}
	return 0
}

// control consumes telemetry and, when fault injection is on, misbehaves on
// every FaultEvery-th activation.
func (d *demo) control(c *kernel.TaskContext, _ uintptr) int32 {
	var samples uint64
	if err := d.telemetry.Access(c, func(t *telemetry) {
		t.reads++
		samples = t.samples
	}); err != nil {
		return -1
	}
	d.controlRuns++
	if d.cfg.FaultEvery > 0 && d.controlRuns%uint64(d.cfg.FaultEvery) == 0 {
		d.inject(c, fault((d.controlRuns/uint64(d.cfg.FaultEvery))%numFaults))
	}

	out := d.mem[0].proc[pidControl][:8]
	binary.LittleEndian.PutUint64(out, samples)
	return 0
}

func (d *demo) inject(c *kernel.TaskContext, f fault) {
	d.injected.Add(1)
	d.logf("control: injecting %s", f)
	switch f {
	case faultWildWrite:
		target := d.mem[0].proc[pidSafety][:4]
		d.guardStore(c, target)
		target[0]++
	case faultNilDeref:
		var t *telemetry
		d.sink = t.samples
	case faultOverrun:
		c.Delay(uint64(d.cfg.TaskBudgetMS) * 4)
	case faultStackOverflow:
		for {
			c.ReserveStack(256)
		}
	case faultAbort:
		c.TerminateTask(-1)
	}
}

// guardStore stands in for the store unit of core 0: a write of b that the
// loaded protection unit or the kernel's region table refuses raises a storage
// fault in the running task.
func (d *demo) guardStore(c *kernel.TaskContext, b []byte) {
	addr, n := addrOf(b), uintptr(len(b))
	if d.mpu.faults(addr, n, true) || !c.CheckWritePtr(addr, n) {
		c.Raise(kernel.CauseDIStorage)
	}
}

// onButton runs in the safety process when the button interrupt fires. It
// runs a diagnosis in the sensor process and logs the result.
func (d *demo) onButton(c *kernel.TaskContext, param uintptr) int32 {
	ret, err := c.RunTask(kernel.UserTask{Fn: d.diagnose, PID: pidSensor, Budget: ms(d.cfg.TaskBudgetMS)}, param)
	if err != nil {
		d.logf("button: diagnosis failed: %v", err)
		return 0
	}
	d.logf("button: key %d, sensor process holds %d samples", param, ret)
	return 0
}

func (d *demo) diagnose(c *kernel.TaskContext, _ uintptr) int32 {
	buf := d.mem[0].proc[pidSensor][:8]
	if !c.CheckReadPtr(addrOf(buf), 8) {
		return -1
	}
	return int32(binary.LittleEndian.Uint64(buf) & 0x7fffffff)
}

func (d *demo) blink(c *kernel.OSContext, _ uintptr) {
	d.blinks++
	d.ledOn = !d.ledOn
	if d.ledOn {
		d.led.High()
	} else {
		d.led.Low()
	}
	if d.sys != nil {
		d.sys.Notify(d.heartbeat, uintptr(d.blinks))
	}
}

func (d *demo) report(c *kernel.OSContext, param uintptr) {
	if d.rep != nil {
		d.rep.Task(c, param)
	}
	if d.sys != nil {
		d.logf("report: core 1 mailbox %d pending, %d lost", d.sys.Pending(1), d.sys.Lost(1))
	}
}

func (d *demo) onHeartbeat(c *kernel.TaskContext, param uintptr) int32 {
	buf := d.mem[1].proc[pidSensor][:8]
	if !c.CheckWritePtr(addrOf(buf), 8) {
		c.Raise(kernel.CauseDIStorage)
	}
	binary.LittleEndian.PutUint64(buf, uint64(param))
	if n := d.beats.Add(1); n%10 == 0 {
		d.logf("core1: %d heartbeats", n)
	}
	return 0
}
