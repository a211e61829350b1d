package syscall

import (
	"encoding/binary"

	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/kernel"
)

// sysStorageGet reads (address, domain, key) out of guest memory, looks the
// composite key up in host storage, and if found bump-allocates a
// length-prefixed copy of the value on the guest heap, returning its VA (or
// 0 on a miss or any malformed argument). Grounded on
// original_source/crates/bootloader/src/syscalls.rs's sys_storage_get; the
// domain/key length packing (low 16 bits = domain length, high 16 = key
// length) is carried over unchanged since it is part of the guest-facing ABI.
func (e *Executor) sysStorageGet(c *cpu.CPU, args [6]uint32) uint32 {
	addressPtr, domainPtr, keyPtr, lensPacked := args[0], args[1], args[2], args[3]
	domainLen := lensPacked & 0xffff
	keyLen := lensPacked >> 16

	if c.Meter.OnSyscallData(gas.SyscallStorageGet, kernel.AddressLen+int(domainLen)+int(keyLen)) == gas.Halt {
		return 0
	}

	addr, ok := addressOf(c.MMU, addressPtr)
	if !ok {
		return 0
	}
	domainBytes, ok := bytesAt(c.MMU, domainPtr, domainLen)
	if !ok {
		return 0
	}
	key, ok := bytesAt(c.MMU, keyPtr, keyLen)
	if !ok {
		return 0
	}

	value, found := e.StorageGet(addr, string(domainBytes), key)
	if !found {
		return 0
	}

	buf := make([]byte, 4+len(value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(value)))
	copy(buf[4:], value)
	if c.Meter.OnAlloc(len(buf)) == gas.Halt {
		return 0
	}
	va, err := c.MMU.AllocOnHeap(buf)
	if err != nil {
		return 0
	}
	return va.Uint32()
}

// sysStorageSet reads (address, domain, key, value) and writes value into
// host storage under their composite key. Grounded on the same file's
// sys_storage_set.
func (e *Executor) sysStorageSet(c *cpu.CPU, args [6]uint32) uint32 {
	addressPtr, domainPtr, keyPtr, lensPacked, valPtr, valLen := args[0], args[1], args[2], args[3], args[4], args[5]
	domainLen := lensPacked & 0xffff
	keyLen := lensPacked >> 16

	if c.Meter.OnSyscallData(gas.SyscallStorageSet, kernel.AddressLen+int(domainLen)+int(keyLen)+int(valLen)) == gas.Halt {
		return 0
	}

	addr, ok := addressOf(c.MMU, addressPtr)
	if !ok {
		return 0
	}
	domainBytes, ok := bytesAt(c.MMU, domainPtr, domainLen)
	if !ok {
		return 0
	}
	key, ok := bytesAt(c.MMU, keyPtr, keyLen)
	if !ok {
		return 0
	}
	value, ok := bytesAt(c.MMU, valPtr, valLen)
	if !ok {
		return 0
	}

	e.StorageSet(addr, string(domainBytes), key, value)
	return 0
}
