package localvol

import (
	"context"
	"fmt"

	"github.com/wyfcoding/localvol/fsm"
	"github.com/wyfcoding/localvol/logging"
)

// Phase 一次校准运行所处的阶段.
type Phase string

const (
	PhaseInitialized      Phase = "initialized"
	PhaseLevelCalibrating Phase = "level_calibrating"
	PhaseExtracted        Phase = "extracted"
	PhaseAssembled        Phase = "assembled"
	PhaseFailed           Phase = "failed"
)

type runEvent string

const (
	eventStartLevel runEvent = "start_level"
	eventExtract    runEvent = "extract"
	eventAssemble   runEvent = "assemble"
	eventFail       runEvent = "fail"
)

// RunState 运行状态; Phase 为 PhaseLevelCalibrating 时 Level 为正在校准的层,
// 为 PhaseFailed 时 Reason 为导致失败的错误.
type RunState struct {
	Phase  Phase
	Level  int
	Reason error
}

func (s RunState) String() string {
	switch s.Phase {
	case PhaseLevelCalibrating:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Level)
	case PhaseFailed:
		if s.Reason != nil {
			return fmt.Sprintf("%s(%v)", s.Phase, s.Reason)
		}
	}
	return string(s.Phase)
}

// runState 包装状态机, 保证层按 0..N-1 顺序推进.
type runState struct {
	machine *fsm.Machine[Phase, runEvent]
	level   int
	steps   int
	reason  error
}

func newRunState(steps int, logger *logging.Logger) *runState {
	m := fsm.NewMachine[Phase, runEvent](PhaseInitialized)
	m.SetLogger(logger.Logger)
	m.AddTransition(PhaseInitialized, eventStartLevel, PhaseLevelCalibrating)
	m.AddTransition(PhaseLevelCalibrating, eventStartLevel, PhaseLevelCalibrating)
	m.AddTransition(PhaseLevelCalibrating, eventExtract, PhaseExtracted)
	m.AddTransition(PhaseExtracted, eventAssemble, PhaseAssembled)
	for _, p := range []Phase{PhaseInitialized, PhaseLevelCalibrating, PhaseExtracted} {
		m.AddTransition(p, eventFail, PhaseFailed)
	}
	m.MarkTerminal(PhaseAssembled, PhaseFailed)

	rs := &runState{machine: m, level: -1, steps: steps}
	next := func(_ context.Context, _, _ Phase, args ...any) error {
		if len(args) != 1 {
			return fmt.Errorf("start_level requires the level index")
		}
		level, ok := args[0].(int)
		if !ok || level != rs.level+1 || level >= rs.steps {
			return fmt.Errorf("level %v out of order after %d", args[0], rs.level)
		}
		rs.level = level
		return nil
	}
	m.AddHandler(PhaseInitialized, PhaseLevelCalibrating, next)
	m.AddHandler(PhaseLevelCalibrating, PhaseLevelCalibrating, next)
	m.AddHandler(PhaseLevelCalibrating, PhaseExtracted, func(context.Context, Phase, Phase, ...any) error {
		if rs.level != rs.steps-1 {
			return fmt.Errorf("extraction requested after level %d of %d", rs.level, rs.steps)
		}
		return nil
	})
	return rs
}

func (rs *runState) startLevel(ctx context.Context, level int) error {
	return rs.machine.Trigger(ctx, eventStartLevel, level)
}

func (rs *runState) extracted(ctx context.Context) error {
	return rs.machine.Trigger(ctx, eventExtract)
}

func (rs *runState) assembled(ctx context.Context) error {
	return rs.machine.Trigger(ctx, eventAssemble)
}

// fail 进入失败状态并记录原因; 已处于终态时不做任何改变.
func (rs *runState) fail(ctx context.Context, reason error) {
	if rs.machine.Trigger(ctx, eventFail) == nil {
		rs.reason = reason
	}
}

func (rs *runState) current() RunState {
	s := RunState{Phase: rs.machine.Current(), Level: rs.level}
	if s.Phase == PhaseFailed {
		s.Reason = rs.reason
	}
	return s
}
