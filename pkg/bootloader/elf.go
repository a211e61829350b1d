package bootloader

import (
	"debug/elf"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingText is returned when a kernel image carries no .text section.
var ErrMissingText = errors.New("bootloader: kernel ELF has no .text section")

// flatRegion is a merged, contiguous view over every section in an image
// whose name carries a given prefix (".text", ".rodata", ".bss"/".sbss"),
// with gaps between sections zero-filled. Grounded on
// original_source/crates/compiler/src/elf.rs's ElfInfo::get_flat_code /
// get_flat_rodata / get_flat_bss, ported from goblin's Elf to the standard
// library's debug/elf (no suitable third-party ELF reader appears anywhere
// else in the retrieval pack, so debug/elf is used directly here rather
// than reaching for an external one; see DESIGN.md).
func flatRegion(f *elf.File, prefix string) (data []byte, base uint64, ok bool) {
	var matched []*elf.Section
	for _, s := range f.Sections {
		if strings.HasPrefix(s.Name, prefix) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return nil, 0, false
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Addr < matched[j].Addr })

	min := matched[0].Addr
	var max uint64
	for _, s := range matched {
		if end := s.Addr + s.Size; end > max {
			max = end
		}
	}
	flat := make([]byte, max-min)
	for _, s := range matched {
		if s.Type == elf.SHT_NOBITS {
			continue // .bss carries no file bytes; the zeroed buffer already covers it
		}
		raw, err := s.Data()
		if err != nil {
			continue
		}
		off := s.Addr - min
		copy(flat[off:off+uint64(len(raw))], raw)
	}
	return flat, min, true
}

// parsedImage is the minimal shape load_kernel needs out of a kernel ELF.
type parsedImage struct {
	entry      uint32
	code       []byte
	codeBase   uint64
	rodata     []byte
	rodataBase uint64
	bss        []byte
	bssBase    uint64
	hasRodata  bool
	hasBSS     bool
}

func parseKernelImage(elfBytes []byte) (*parsedImage, error) {
	f, err := elf.NewFile(&readerAt{elfBytes})
	if err != nil {
		return nil, fmt.Errorf("parse kernel ELF: %w", err)
	}
	defer f.Close()

	code, codeBase, ok := flatRegion(f, ".text")
	if !ok {
		return nil, ErrMissingText
	}
	img := &parsedImage{
		entry:    uint32(f.Entry),
		code:     code,
		codeBase: codeBase,
	}
	if rodata, roBase, ok := flatRegion(f, ".rodata"); ok {
		img.rodata, img.rodataBase, img.hasRodata = rodata, roBase, true
	}
	bss, bssBase, ok := flatRegion(f, ".bss")
	if !ok {
		bss, bssBase, ok = flatRegion(f, ".sbss")
	}
	if ok {
		img.bss, img.bssBase, img.hasBSS = bss, bssBase, true
	}
	return img, nil
}

// readerAt adapts a byte slice to io.ReaderAt without pulling in bytes.Reader
// just for this, since elf.NewFile wants random access, not streaming.
type readerAt struct{ buf []byte }

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.buf)) {
		return 0, errors.New("bootloader: read past end of ELF image")
	}
	n := copy(p, r.buf[off:])
	if n < len(p) {
		return n, errors.New("bootloader: short read of ELF image")
	}
	return n, nil
}
