package kernel

import "fmt"

// ErrorCode is a configuration or run-time API error.
//
// Codes are comparable values, so callers use errors.Is or plain ==.
type ErrorCode uint8

const (
	ErrTooManyEvents ErrorCode = iota + 1
	ErrInvalidEventPriority
	ErrBadEventTiming
	ErrEventNotTriggerable
	ErrConfigurationOfRunningKernel
	ErrBadEventID
	ErrBadProcessID
	ErrTooManyTasks
	ErrNoEventOrTask
	ErrEventWithoutTask
	ErrBadTaskFunction
	ErrTaskBudgetTooBig
	ErrInitTaskRedefined
	ErrInitTaskFailed
	ErrProcessStackInvalid
	ErrTaskBelongsToInvalidProcess
	ErrHighPrioTaskInLowPrivProcess
	ErrRunTaskBadPermission
	ErrSuspendProcessBadPermission
	ErrPermission
	ErrBadArgument
	ErrProcessSuspended
	ErrKernelHalted
)

func (e ErrorCode) Error() string { return "kernel: " + e.String() }

func (e ErrorCode) String() string {
	switch e {
	case ErrTooManyEvents:
		return "too many events created"
	case ErrInvalidEventPriority:
		return "invalid event priority"
	case ErrBadEventTiming:
		return "bad event timing"
	case ErrEventNotTriggerable:
		return "event trigger privilege out of range"
	case ErrConfigurationOfRunningKernel:
		return "configuration of running kernel"
	case ErrBadEventID:
		return "bad event handle"
	case ErrBadProcessID:
		return "bad process id"
	case ErrTooManyTasks:
		return "too many tasks registered"
	case ErrNoEventOrTask:
		return "no event or task registered"
	case ErrEventWithoutTask:
		return "event without task"
	case ErrBadTaskFunction:
		return "bad task function"
	case ErrTaskBudgetTooBig:
		return "task budget too big"
	case ErrInitTaskRedefined:
		return "init task redefined"
	case ErrInitTaskFailed:
		return "init task failed"
	case ErrProcessStackInvalid:
		return "process stack invalid"
	case ErrTaskBelongsToInvalidProcess:
		return "task belongs to unconfigured process"
	case ErrHighPrioTaskInLowPrivProcess:
		return "high priority task in low privileged process"
	case ErrRunTaskBadPermission:
		return "run task grant targets highest privileged process"
	case ErrSuspendProcessBadPermission:
		return "suspend grant targets highest privileged process"
	case ErrPermission:
		return "permission denied"
	case ErrBadArgument:
		return "bad argument"
	case ErrProcessSuspended:
		return "process suspended"
	case ErrKernelHalted:
		return "kernel halted"
	default:
		return fmt.Sprintf("error %d", uint8(e))
	}
}

// Cause classifies a task failure. Every failure is counted per process and cause.
type Cause uint8

const (
	CauseProcessAbort Cause = iota
	CauseMachineCheck
	CauseDeadline
	CauseDIStorage
	CauseSysCallBadArg
	CauseAlignment
	CauseProgramInterrupt
	CauseFPUUnavailable
	CauseTLBData
	CauseTLBInstruction
	CauseSPEInstruction
	CauseUserAbort
	CauseStackOverflow

	NumCauses = 13
)

func (c Cause) String() string {
	switch c {
	case CauseProcessAbort:
		return "process abort"
	case CauseMachineCheck:
		return "machine check"
	case CauseDeadline:
		return "deadline"
	case CauseDIStorage:
		return "storage"
	case CauseSysCallBadArg:
		return "syscall bad arg"
	case CauseAlignment:
		return "alignment"
	case CauseProgramInterrupt:
		return "program interrupt"
	case CauseFPUUnavailable:
		return "fpu unavailable"
	case CauseTLBData:
		return "tlb data"
	case CauseTLBInstruction:
		return "tlb instruction"
	case CauseSPEInstruction:
		return "spe instruction"
	case CauseUserAbort:
		return "user abort"
	case CauseStackOverflow:
		return "stack overflow"
	default:
		return "unknown"
	}
}

// TaskError reports a failed task activation started with RunTask.
type TaskError struct {
	PID   PID
	Cause Cause
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("kernel: task in process %d failed: %s", e.PID, e.Cause)
}
