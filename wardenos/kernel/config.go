package kernel

import "time"

// NumProcesses is the number of user processes. PID 0 is the kernel itself.
const NumProcesses = 4

// PID identifies a process. Higher user PIDs are more trusted.
type PID uint8

// KernelPID is the process that owns OS tasks. It is never restricted.
const KernelPID PID = 0

// NotUserTriggerable as EventConfig.MinTrigger forbids user tasks to trigger the event.
const NotUserTriggerable PID = NumProcesses + 1

// Priority is a task priority. 0 is the idle level; larger values are more urgent.
type Priority uint8

const (
	defaultMaxEvents       = 32
	defaultMaxTasks        = 64
	defaultMaxTaskPriority = 11
	defaultTickPeriod      = time.Millisecond
	defaultTaskFrameBytes  = 64
	defaultKernelStack     = 4096
	defaultLoadWindow      = time.Second

	// maxTimingTicks bounds cycle and first activation; the top two bits of a
	// 32 bit tick value stay clear so due time arithmetic cannot wrap.
	maxTimingTicks = 1 << 30

	minStackSize   = 256
	maxStackSize   = 0x10000
	stackAlignment = 8
)

// Logger receives newline-free log lines. It matches hal.Logger.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

type nopLogger struct{}

func (nopLogger) WriteLineString(string) {}
func (nopLogger) WriteLineBytes([]byte)  {}

// Config holds the static parameters of one kernel instance (one per core).
type Config struct {
	// Core is the index of the core this instance runs on. Used in logs only.
	Core int

	MaxEvents int
	MaxTasks  int

	// MaxTaskPriority is the highest event priority. Priorities above
	// MaxLockablePriority are reserved for OS tasks and the most trusted process.
	MaxTaskPriority     Priority
	MaxLockablePriority Priority

	TickPeriod    time.Duration
	MaxTaskBudget time.Duration

	// TaskFrameBytes is charged against the process stack for every activation.
	TaskFrameBytes uint32
	// KernelStackSize is the stack of process 0 (OS tasks).
	KernelStackSize uint32

	// SharedRegions are accessible by every process with their own permissions.
	SharedRegions []Region

	Backend ProtectionBackend
	Logger  Logger

	// Idle runs in the idle context whenever no activation is pending.
	Idle func()

	// LoadWindow is the averaging window of SystemLoad.
	LoadWindow time.Duration
	// Clock is read by the load measurement. Defaults to time.Now.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxEvents <= 0 {
		c.MaxEvents = defaultMaxEvents
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = defaultMaxTasks
	}
	if c.MaxTaskPriority == 0 {
		c.MaxTaskPriority = defaultMaxTaskPriority
	}
	if c.MaxLockablePriority == 0 || c.MaxLockablePriority > c.MaxTaskPriority {
		c.MaxLockablePriority = c.MaxTaskPriority - 1
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = defaultTickPeriod
	}
	if c.MaxTaskBudget <= 0 {
		c.MaxTaskBudget = maxTimingTicks * c.TickPeriod
	}
	if c.TaskFrameBytes == 0 {
		c.TaskFrameBytes = defaultTaskFrameBytes
	}
	if c.KernelStackSize == 0 {
		c.KernelStackSize = defaultKernelStack
	}
	if c.Backend == nil {
		c.Backend = nopBackend{}
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.LoadWindow <= 0 {
		c.LoadWindow = defaultLoadWindow
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
