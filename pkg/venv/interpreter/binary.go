package interpreter

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
)

// executablePointer64 reads the executable header to tell a 64-bit build from
// a 32-bit one. ok is false when the format is not recognised.
func executablePointer64(path string) (is64 bool, ok bool) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return f.Class == elf.ELFCLASS64, true
	}

	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return f.Cpu&0x01000000 != 0, true // CPU_ARCH_ABI64
	}

	if fat, err := macho.OpenFat(path); err == nil {
		defer fat.Close()
		if len(fat.Arches) == 0 {
			return false, false
		}
		for _, arch := range fat.Arches {
			if arch.Cpu&0x01000000 == 0 {
				return false, true
			}
		}
		return true, true
	}

	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		_, is64 := f.OptionalHeader.(*pe.OptionalHeader64)
		return is64, f.OptionalHeader != nil
	}

	return false, false
}
