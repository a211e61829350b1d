package syscall

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/avm-core/avm32/pkg/cpu"
	"github.com/avm-core/avm32/pkg/gas"
	"github.com/avm-core/avm32/pkg/mmu"
)

// sysLog reads a format string and a packed raw-argument buffer out of guest
// memory, renders the message and writes it to the host logger. Grounded on
// sys_log, but collapsed from its original two-pass design (first scan the
// format string to build a typed Arg list consuming raw u32 words, then scan
// it again substituting into the output) into a single pass that consumes
// words lazily as each specifier is reached — the two passes exist in the
// original only because Rust's borrow checker wants the argument Vec fully
// built before formatting can borrow `memory` again; Go has no such
// constraint; see formatLog for the specifier table (%d %u %x %f %c %s %b
// %a %A %%).
func (e *Executor) sysLog(c *cpu.CPU, args [6]uint32) uint32 {
	fmtPtr, fmtLen, argPtr, argLen := args[0], args[1], args[2], args[3]
	if c.Meter.OnSyscallData(gas.SyscallLog, int(fmtLen)+int(argLen)) == gas.Halt {
		return 0
	}

	fmtBytes, ok := bytesAt(c.MMU, fmtPtr, fmtLen)
	if !ok || !utf8.Valid(fmtBytes) {
		e.log.Error("log: invalid format string", "ptr", fmtPtr)
		return 0
	}

	var rawWords []uint32
	if argLen > 0 {
		argBytes, ok := bytesAt(c.MMU, argPtr, argLen)
		if ok {
			rawWords = make([]uint32, len(argBytes)/4)
			for i := range rawWords {
				rawWords[i] = uint32(argBytes[i*4]) | uint32(argBytes[i*4+1])<<8 |
					uint32(argBytes[i*4+2])<<16 | uint32(argBytes[i*4+3])<<24
			}
		}
	}

	e.log.Info(formatLog(c.MMU, string(fmtBytes), rawWords))
	return 0
}

// formatLog renders fmtStr against rawWords, reading %s/%b/%a/%A payloads
// out of mem by (pointer, length) word pairs. Unknown specifiers render as
// "<%?>" and out-of-bounds reads as "<invalid>", matching the
// original's own fallback text exactly.
func formatLog(mem *mmu.Memory, fmtStr string, rawWords []uint32) string {
	var out strings.Builder
	wi := 0
	next := func() uint32 {
		if wi < len(rawWords) {
			v := rawWords[wi]
			wi++
			return v
		}
		return 0
	}

	runes := []rune(fmtStr)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' {
			out.WriteRune(runes[i])
			continue
		}
		i++
		if i >= len(runes) {
			out.WriteString("<%?>")
			break
		}
		switch runes[i] {
		case 'd', 'u':
			out.WriteString(strconv.FormatInt(int64(int32(next())), 10))
		case 'x':
			out.WriteString(fmt.Sprintf("%08x", next()))
		case 'f':
			out.WriteString(strconv.FormatFloat(float64(math.Float32frombits(next())), 'g', -1, 32))
		case 'c':
			r := rune(next())
			if !utf8.ValidRune(r) {
				r = '?'
			}
			out.WriteRune(r)
		case 's':
			ptr, ln := next(), next()
			if data, ok := bytesAt(mem, ptr, ln); ok && utf8.Valid(data) {
				out.Write(data)
			} else {
				out.WriteString("<invalid>")
			}
		case 'b':
			ptr, ln := next(), next()
			data, ok := bytesAt(mem, ptr, ln)
			if !ok {
				out.WriteString("<invalid>")
				break
			}
			out.WriteByte('[')
			for i, b := range data {
				if i > 0 {
					out.WriteString(", ")
				}
				out.WriteString(fmt.Sprintf("0x%02x", b))
			}
			out.WriteByte(']')
		case 'a':
			ptr, ln := next(), next()
			data, ok := bytesAt(mem, ptr, ln*4)
			if !ok {
				out.WriteString("<invalid>")
				break
			}
			out.WriteByte('[')
			for i := 0; i+4 <= len(data); i += 4 {
				if i > 0 {
					out.WriteString(", ")
				}
				v := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
				out.WriteString(strconv.FormatUint(uint64(v), 10))
			}
			out.WriteByte(']')
		case 'A':
			ptr, ln := next(), next()
			data, ok := bytesAt(mem, ptr, ln)
			if !ok {
				out.WriteString("<invalid>")
				break
			}
			out.WriteByte('[')
			for i, b := range data {
				if i > 0 {
					out.WriteString(", ")
				}
				out.WriteString(strconv.Itoa(int(b)))
			}
			out.WriteByte(']')
		case '%':
			out.WriteByte('%')
		default:
			out.WriteString("<%?>")
		}
	}
	return out.String()
}
