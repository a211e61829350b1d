package kernel

import (
	"fmt"

	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/metrics"
)

// RunTask drives c through the trampoline into the program task occupying
// slot and steps it to completion, per spec.md §4.6's "Entry" sequence.
//
// Grounded on original_source/crates/kernel/src/task/run.rs's run_task, with
// one structural difference: the original is a genuine one-way handoff (it
// never returns — user code eventually traps back through a hardware trap
// vector this core has no model for). SPEC_FULL.md resolves spec.md §9's
// anticipated "symmetric re-entry" by having RunTask itself drive c.Step()
// in a loop until the task halts (EBREAK, since none of the fixed syscall
// IDs means "return to caller"), then restoring the kernel's own frame from
// task 0's trapframe — the same fields run_task saves into TASKS[0] before
// the jump, read back out here instead of by a trap handler.
func (k *Manager) RunTask(c *cpu.CPU, slot int) error {
	task := k.tasks[slot]
	if task == nil || !task.Live {
		return fmt.Errorf("%w: slot=%d", ErrInvalidSlot, slot)
	}

	kernelRoot := k.mem.CurrentRoot()
	if kt := k.tasks[0]; kt != nil {
		kt.Space.Root = kernelRoot
		kt.TF.Regs[RegSP] = c.Regs[cpu.Sp]
		kt.TF.Regs[RegRA] = c.Regs[cpu.Ra]
		kt.TF.PC = c.PC
	}

	k.log.Info("run_task: switching satp", "from", kernelRoot, "to", task.Space.Root,
		"asid", task.Space.ASID, "pc", task.TF.PC, "sp", task.TF.Regs[RegSP])

	// Preload the trampoline's inputs exactly as run_task does: t0 carries
	// the target satp value, t1 the user PC; sp/a0..a3 are the task's own,
	// ra is cleared since there is no return address into a caller that no
	// longer exists at this root.
	c.Regs[cpu.T0] = uint32(task.Space.Root)
	c.Regs[cpu.T1] = task.TF.PC
	c.Regs[cpu.Sp] = task.TF.Regs[RegSP]
	c.Regs[cpu.A0] = task.TF.Regs[RegA0]
	c.Regs[cpu.A1] = task.TF.Regs[RegA1]
	c.Regs[cpu.A2] = task.TF.Regs[RegA2]
	c.Regs[cpu.A3] = task.TF.Regs[RegA3]
	c.Regs[cpu.Ra] = 0
	c.PC = k.cfg.TrampolineVA()
	k.current = slot

	metrics.TasksRun.Inc()

	for {
		cont, err := c.Step()
		if err != nil {
			return fmt.Errorf("task %d trapped: %w", slot, err)
		}
		if !cont {
			break
		}
	}

	kt := k.tasks[0]
	if kt != nil {
		if err := k.mem.SetSatp(uint32(kt.Space.Root)); err != nil {
			return fmt.Errorf("restore kernel root: %w", err)
		}
		c.PC = kt.TF.PC
		c.Regs[cpu.Sp] = kt.TF.Regs[RegSP]
		c.Regs[cpu.Ra] = kt.TF.Regs[RegRA]
	}
	task.Live = false
	k.current = 0
	return nil
}
