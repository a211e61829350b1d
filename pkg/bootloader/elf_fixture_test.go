package bootloader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// elfFixture describes the sections a buildMinimalELF caller wants present;
// no RV32 assembler is available in this environment, so fixture text is
// hand-assembled bytes (filler, or a hand-encoded EBREAK where a test runs
// the image) — parseKernelImage only cares about section layout, not
// instruction semantics.
type elfFixture struct {
	entry      uint32
	text       []byte
	textAddr   uint32
	rodata     []byte // nil to omit the section entirely
	rodataAddr uint32
	bssSize    int // 0 to omit the section entirely
	bssAddr    uint32
	omitText   bool // build a file with no .text section at all
}

// buildMinimalELF hand-assembles a 32-bit little-endian ELF image (ELF
// header, section data, a .shstrtab, and a section header table) using only
// debug/elf's layout constants, since no RV32 toolchain is available here
// to produce a real one.
func buildMinimalELF(f elfFixture) []byte {
	type namedSection struct {
		name  string
		typ   elf.SectionType
		flags elf.SectionFlag
		addr  uint32
		data  []byte // nil for SHT_NOBITS
		size  uint32
	}

	var sections []namedSection
	if !f.omitText {
		sections = append(sections, namedSection{
			name: ".text", typ: elf.SHT_PROGBITS,
			flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
			addr:  f.textAddr, data: f.text, size: uint32(len(f.text)),
		})
	}
	if f.rodata != nil {
		sections = append(sections, namedSection{
			name: ".rodata", typ: elf.SHT_PROGBITS,
			flags: elf.SHF_ALLOC,
			addr:  f.rodataAddr, data: f.rodata, size: uint32(len(f.rodata)),
		})
	}
	if f.bssSize != 0 {
		sections = append(sections, namedSection{
			name: ".bss", typ: elf.SHT_NOBITS,
			flags: elf.SHF_ALLOC | elf.SHF_WRITE,
			addr:  f.bssAddr, size: uint32(f.bssSize),
		})
	}

	// Build .shstrtab content and remember each section's name offset.
	var strtab bytes.Buffer
	strtab.WriteByte(0) // index 0 is the empty name
	nameOff := make([]uint32, len(sections))
	for i, s := range sections {
		nameOff[i] = uint32(strtab.Len())
		strtab.WriteString(s.name)
		strtab.WriteByte(0)
	}
	shstrtabNameOff := uint32(strtab.Len())
	strtab.WriteString(".shstrtab")
	strtab.WriteByte(0)

	const ehdrSize = 52
	const shdrSize = 40

	var body bytes.Buffer
	fileOff := make([]uint32, len(sections))
	for i, s := range sections {
		if s.typ == elf.SHT_NOBITS {
			fileOff[i] = 0
			continue
		}
		fileOff[i] = uint32(ehdrSize + body.Len())
		body.Write(s.data)
	}
	strtabOff := uint32(ehdrSize + body.Len())
	body.Write(strtab.Bytes())

	shoff := uint32(ehdrSize) + uint32(body.Len())
	shnum := uint16(len(sections) + 2) // null entry + one per section + shstrtab

	var out bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 1 /* ELFCLASS32 */, 1 /* ELFDATA2LSB */, 1 /* EV_CURRENT */}
	out.Write(ident[:])
	binary.Write(&out, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(&out, binary.LittleEndian, uint16(elf.EM_RISCV))
	binary.Write(&out, binary.LittleEndian, uint32(elf.EV_CURRENT))
	binary.Write(&out, binary.LittleEndian, f.entry)
	binary.Write(&out, binary.LittleEndian, uint32(0)) // phoff
	binary.Write(&out, binary.LittleEndian, shoff)
	binary.Write(&out, binary.LittleEndian, uint32(0)) // flags
	binary.Write(&out, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(&out, binary.LittleEndian, uint16(0)) // phentsize
	binary.Write(&out, binary.LittleEndian, uint16(0)) // phnum
	binary.Write(&out, binary.LittleEndian, uint16(shdrSize))
	binary.Write(&out, binary.LittleEndian, shnum)
	binary.Write(&out, binary.LittleEndian, uint16(len(sections)+1)) // shstrndx

	out.Write(body.Bytes())

	writeShdr := func(name, typ, flags, addr, off, size uint32) {
		binary.Write(&out, binary.LittleEndian, name)
		binary.Write(&out, binary.LittleEndian, typ)
		binary.Write(&out, binary.LittleEndian, flags)
		binary.Write(&out, binary.LittleEndian, addr)
		binary.Write(&out, binary.LittleEndian, off)
		binary.Write(&out, binary.LittleEndian, size)
		binary.Write(&out, binary.LittleEndian, uint32(0)) // link
		binary.Write(&out, binary.LittleEndian, uint32(0)) // info
		binary.Write(&out, binary.LittleEndian, uint32(1)) // addralign
		binary.Write(&out, binary.LittleEndian, uint32(0)) // entsize
	}

	writeShdr(0, 0, 0, 0, 0, 0) // SHT_NULL entry
	for i, s := range sections {
		writeShdr(nameOff[i], uint32(s.typ), uint32(s.flags), s.addr, fileOff[i], s.size)
	}
	writeShdr(shstrtabNameOff, uint32(elf.SHT_STRTAB), 0, 0, strtabOff, uint32(strtab.Len()))

	return out.Bytes()
}
