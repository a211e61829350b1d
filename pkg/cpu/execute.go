package cpu

import (
	"github.com/avm-core/avm32/pkg/decoder"
	"github.com/avm-core/avm32/pkg/mmu"
)

// execute runs one decoded instruction. It returns wrotePC (true if PC was
// already advanced by a branch/jump/trap and Step must not add size again),
// cont (false halts the step loop) and err (non-nil only for a memory
// translation fault).
func (c *CPU) execute(instr decoder.Instruction) (wrotePC bool, cont bool, err error) {
	linkSize := uint32(4)
	if instr.Compressed {
		linkSize = 2
	}

	switch instr.Kind {
	case decoder.KindUnimp, decoder.KindFence:
		return false, true, nil

	case decoder.KindLui:
		c.writeReg(instr.Rd, uint32(instr.Imm))
		return false, true, nil
	case decoder.KindAuipc:
		c.writeReg(instr.Rd, c.PC+uint32(instr.Imm))
		return false, true, nil

	case decoder.KindAdd:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)+c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindSub:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)-c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindAddi:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)+uint32(instr.Imm))
		return false, true, nil
	case decoder.KindAnd:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)&c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindOr:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)|c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindXor:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)^c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindAndi:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)&uint32(instr.Imm))
		return false, true, nil
	case decoder.KindOri:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)|uint32(instr.Imm))
		return false, true, nil
	case decoder.KindXori:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)^uint32(instr.Imm))
		return false, true, nil
	case decoder.KindSlt:
		c.writeReg(instr.Rd, boolToU32(signed(c.readReg(instr.Rs1)) < signed(c.readReg(instr.Rs2))))
		return false, true, nil
	case decoder.KindSltu:
		c.writeReg(instr.Rd, boolToU32(c.readReg(instr.Rs1) < c.readReg(instr.Rs2)))
		return false, true, nil
	case decoder.KindSlti:
		c.writeReg(instr.Rd, boolToU32(signed(c.readReg(instr.Rs1)) < instr.Imm))
		return false, true, nil
	case decoder.KindSltiu:
		c.writeReg(instr.Rd, boolToU32(c.readReg(instr.Rs1) < uint32(instr.Imm)))
		return false, true, nil
	case decoder.KindSll:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)<<(c.readReg(instr.Rs2)&0x1f))
		return false, true, nil
	case decoder.KindSrl:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)>>(c.readReg(instr.Rs2)&0x1f))
		return false, true, nil
	case decoder.KindSra:
		c.writeReg(instr.Rd, uint32(signed(c.readReg(instr.Rs1))>>(c.readReg(instr.Rs2)&0x1f)))
		return false, true, nil
	case decoder.KindSlli:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)<<uint32(instr.Imm&0x1f))
		return false, true, nil
	case decoder.KindSrli:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)>>uint32(instr.Imm&0x1f))
		return false, true, nil
	case decoder.KindSrai:
		c.writeReg(instr.Rd, uint32(signed(c.readReg(instr.Rs1))>>uint32(instr.Imm&0x1f)))
		return false, true, nil

	case decoder.KindMul:
		c.writeReg(instr.Rd, c.readReg(instr.Rs1)*c.readReg(instr.Rs2))
		return false, true, nil
	case decoder.KindMulh:
		lhs := int64(signed(c.readReg(instr.Rs1)))
		rhs := int64(signed(c.readReg(instr.Rs2)))
		c.writeReg(instr.Rd, uint32((lhs*rhs)>>32))
		return false, true, nil
	case decoder.KindMulhu:
		lhs := uint64(c.readReg(instr.Rs1))
		rhs := uint64(c.readReg(instr.Rs2))
		c.writeReg(instr.Rd, uint32((lhs*rhs)>>32))
		return false, true, nil
	case decoder.KindMulhsu:
		lhs := int64(signed(c.readReg(instr.Rs1)))
		rhs := int64(uint64(c.readReg(instr.Rs2)))
		c.writeReg(instr.Rd, uint32((lhs*rhs)>>32))
		return false, true, nil
	case decoder.KindDiv:
		lhs, rhs := signed(c.readReg(instr.Rs1)), signed(c.readReg(instr.Rs2))
		switch {
		case rhs == 0:
			c.writeReg(instr.Rd, ^uint32(0))
		case lhs == -2147483648 && rhs == -1:
			c.writeReg(instr.Rd, uint32(lhs))
		default:
			c.writeReg(instr.Rd, uint32(lhs/rhs))
		}
		return false, true, nil
	case decoder.KindDivu:
		lhs, rhs := c.readReg(instr.Rs1), c.readReg(instr.Rs2)
		if rhs == 0 {
			c.writeReg(instr.Rd, ^uint32(0))
		} else {
			c.writeReg(instr.Rd, lhs/rhs)
		}
		return false, true, nil
	case decoder.KindRem:
		lhs, rhs := signed(c.readReg(instr.Rs1)), signed(c.readReg(instr.Rs2))
		switch {
		case rhs == 0:
			c.writeReg(instr.Rd, uint32(lhs))
		case lhs == -2147483648 && rhs == -1:
			c.writeReg(instr.Rd, 0)
		default:
			c.writeReg(instr.Rd, uint32(lhs%rhs))
		}
		return false, true, nil
	case decoder.KindRemu:
		lhs, rhs := c.readReg(instr.Rs1), c.readReg(instr.Rs2)
		if rhs == 0 {
			c.writeReg(instr.Rd, lhs)
		} else {
			c.writeReg(instr.Rd, lhs%rhs)
		}
		return false, true, nil

	case decoder.KindLb, decoder.KindLbu, decoder.KindLh, decoder.KindLhu, decoder.KindLw:
		return false, true, c.execLoad(instr)
	case decoder.KindSb, decoder.KindSh, decoder.KindSw:
		return false, true, c.execStore(instr)

	case decoder.KindBeq, decoder.KindBne, decoder.KindBlt, decoder.KindBge, decoder.KindBltu, decoder.KindBgeu:
		taken := c.branchTaken(instr)
		if !taken {
			return false, true, nil
		}
		c.PC = c.PC + uint32(instr.Imm)
		return true, true, nil

	case decoder.KindJal:
		c.writeReg(instr.Rd, c.PC+linkSize)
		c.PC = c.PC + uint32(instr.Imm)
		return true, true, nil
	case decoder.KindJalr:
		target := (c.readReg(instr.Rs1) + uint32(instr.Imm)) &^ 1
		c.writeReg(instr.Rd, c.PC+linkSize)
		c.PC = target
		return true, true, nil

	case decoder.KindEcall:
		args := [6]uint32{
			c.readReg(A1), c.readReg(A2), c.readReg(A3),
			c.readReg(A4), c.readReg(A5), c.readReg(A6),
		}
		callID := c.readReg(A7)
		result, keepGoing := c.Syscalls.Handle(c, callID, args)
		c.writeReg(A0, result)
		return false, keepGoing, nil
	case decoder.KindEbreak:
		return false, false, nil

	case decoder.KindCSR:
		return false, true, c.execCSR(instr)

	case decoder.KindLrW:
		return false, true, c.execLR(instr)
	case decoder.KindScW:
		return false, true, c.execSC(instr)
	case decoder.KindAmoswapW, decoder.KindAmoaddW, decoder.KindAmoandW, decoder.KindAmoorW,
		decoder.KindAmoxorW, decoder.KindAmomaxW, decoder.KindAmominW, decoder.KindAmomaxuW, decoder.KindAmominuW:
		return false, true, c.execAMO(instr)

	default:
		return false, true, nil
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (c *CPU) branchTaken(instr decoder.Instruction) bool {
	lhs, rhs := c.readReg(instr.Rs1), c.readReg(instr.Rs2)
	switch instr.Kind {
	case decoder.KindBeq:
		return lhs == rhs
	case decoder.KindBne:
		return lhs != rhs
	case decoder.KindBlt:
		return signed(lhs) < signed(rhs)
	case decoder.KindBge:
		return signed(lhs) >= signed(rhs)
	case decoder.KindBltu:
		return lhs < rhs
	case decoder.KindBgeu:
		return lhs >= rhs
	}
	return false
}

func (c *CPU) execLoad(instr decoder.Instruction) error {
	addr := mmu.VirtualAddress(c.readReg(instr.Rs1) + uint32(instr.Imm))
	switch instr.Kind {
	case decoder.KindLw:
		v, err := c.MMU.LoadWord(addr, c.Meter, mmu.AccessLoad)
		if err != nil {
			return err
		}
		c.writeReg(instr.Rd, v)
	case decoder.KindLh:
		v, err := c.MMU.LoadHalfword(addr, c.Meter, mmu.AccessLoad)
		if err != nil {
			return err
		}
		c.writeReg(instr.Rd, uint32(int32(int16(v))))
	case decoder.KindLhu:
		v, err := c.MMU.LoadHalfword(addr, c.Meter, mmu.AccessLoad)
		if err != nil {
			return err
		}
		c.writeReg(instr.Rd, uint32(v))
	case decoder.KindLb:
		v, err := c.MMU.LoadByte(addr, c.Meter, mmu.AccessLoad)
		if err != nil {
			return err
		}
		c.writeReg(instr.Rd, uint32(int32(int8(v))))
	case decoder.KindLbu:
		v, err := c.MMU.LoadByte(addr, c.Meter, mmu.AccessLoad)
		if err != nil {
			return err
		}
		c.writeReg(instr.Rd, uint32(v))
	}
	return nil
}

func (c *CPU) execStore(instr decoder.Instruction) error {
	addr := mmu.VirtualAddress(c.readReg(instr.Rs1) + uint32(instr.Imm))
	src := c.readReg(instr.Rs2)
	switch instr.Kind {
	case decoder.KindSw:
		return c.MMU.StoreU32(addr, src, c.Meter, mmu.AccessStore)
	case decoder.KindSh:
		return c.MMU.StoreU16(addr, uint16(src), c.Meter, mmu.AccessStore)
	case decoder.KindSb:
		return c.MMU.StoreU8(addr, byte(src), c.Meter, mmu.AccessStore)
	}
	return nil
}

// execCSR implements the generic CSR read-modify-write form (spec.md §4.2):
// the old value is always written to rd; CSRRW always writes the new value;
// CSRRS/CSRRC only write when the source mask is non-zero (an rs1==x0,
// non-immediate CSRRS/CSRRC is a pure read, matching the real ISA's
// "rs1=x0 suppresses the write" rule). A write to satp additionally
// invalidates any outstanding LR/SC reservation and switches the MMU's
// active root.
func (c *CPU) execCSR(instr decoder.Instruction) error {
	old := c.CSRs[instr.CSR]
	c.writeReg(instr.Rd, old)

	var src uint32
	if instr.ImmFlag {
		src = instr.Rs1OrUimm
	} else {
		src = c.readReg(instr.Rs1)
	}

	var write bool
	var next uint32
	switch instr.CSROp {
	case decoder.CSRRW:
		write, next = true, src
	case decoder.CSRRS:
		write, next = src != 0, old|src
	case decoder.CSRRC:
		write, next = src != 0, old&^src
	}
	if !write {
		return nil
	}
	c.CSRs[instr.CSR] = next
	if instr.CSR == CSRSatp {
		c.Reservation = -1
		return c.MMU.SetSatp(next)
	}
	return nil
}

func (c *CPU) execLR(instr decoder.Instruction) error {
	addr := mmu.VirtualAddress(c.readReg(instr.Rs1))
	v, err := c.MMU.LoadWord(addr, c.Meter, mmu.AccessReservationLoad)
	if err != nil {
		return err
	}
	phys, err := c.MMU.Translate(addr, mmu.AccessReservationLoad)
	if err != nil {
		return err
	}
	c.Reservation = phys
	c.writeReg(instr.Rd, v)
	return nil
}

func (c *CPU) execSC(instr decoder.Instruction) error {
	addr := mmu.VirtualAddress(c.readReg(instr.Rs1))
	phys, err := c.MMU.Translate(addr, mmu.AccessReservationStore)
	if err != nil {
		return err
	}
	if c.Reservation == phys {
		if err := c.MMU.StoreU32(addr, c.readReg(instr.Rs2), c.Meter, mmu.AccessReservationStore); err != nil {
			return err
		}
		c.Reservation = -1
		c.writeReg(instr.Rd, 0)
		return nil
	}
	c.writeReg(instr.Rd, 1)
	return nil
}

// execAMO performs rd <- M[rs1]; M[rs1] <- f(M[rs1], rs2) as a single
// metered atomic event (spec.md §4.2): the load is charged through the
// meter, the store that follows is not charged again.
func (c *CPU) execAMO(instr decoder.Instruction) error {
	addr := mmu.VirtualAddress(c.readReg(instr.Rs1))
	old, err := c.MMU.LoadWord(addr, c.Meter, mmu.AccessAtomic)
	if err != nil {
		return err
	}
	rs2 := c.readReg(instr.Rs2)
	var result uint32
	switch instr.Kind {
	case decoder.KindAmoswapW:
		result = rs2
	case decoder.KindAmoaddW:
		result = old + rs2
	case decoder.KindAmoandW:
		result = old & rs2
	case decoder.KindAmoorW:
		result = old | rs2
	case decoder.KindAmoxorW:
		result = old ^ rs2
	case decoder.KindAmomaxW:
		if signed(old) > signed(rs2) {
			result = old
		} else {
			result = rs2
		}
	case decoder.KindAmominW:
		if signed(old) < signed(rs2) {
			result = old
		} else {
			result = rs2
		}
	case decoder.KindAmomaxuW:
		if old > rs2 {
			result = old
		} else {
			result = rs2
		}
	case decoder.KindAmominuW:
		if old < rs2 {
			result = old
		} else {
			result = rs2
		}
	}
	if err := c.MMU.StoreU32(addr, result, nil, mmu.AccessAtomic); err != nil {
		return err
	}
	c.writeReg(instr.Rd, old)
	return nil
}
