package plc

import "sync"

// ProcessImage is the runtime's in-memory mirror of PLC I/O variables,
// addressed by Modbus address. It holds a sparse binding table per table
// (discrete inputs, coils, input registers, and the four holding-register
// width zones) plus the default store that backs any address without a
// PLC-owned binding. Ref: spec.md §3/§4.2, original's bool_input/bool_output
// /int_input/int_output/int_memory/dint_memory/lint_memory pointer arrays.
//
// All reads and writes of the tables below, from any handler and from the
// scan cycle, must go through mu — this is the "single process-image
// mutex" of spec.md §5.
type ProcessImage struct {
	mu sync.RWMutex

	discreteBind  [MaxDiscreteInput]*bool
	coilBind      [MaxCoils]*bool
	inputRegBind  [MaxInputRegs]*uint16
	analogOutBind [Min16BRange + 1]*uint16                  // Z16-out, addresses 0..1024
	memWordBind   [Max16BRange - Min16BRange + 1]*uint16     // Z16-mem, addresses 1024..2047 (index 0 unused, see §3)
	dwordBind     [(Max32BRange - Min32BRange + 1) / 2]*uint32 // Z32-mem elements
	qwordBind     [(Max64BRange - Min64BRange + 1) / 4]*uint64 // Z64-mem elements

	store *DefaultStore
}

// NewProcessImage creates a process image backed by a fresh default store.
// Call the RegisterXxx methods to install PLC variable bindings, then
// BindDefaults once before accepting requests.
func NewProcessImage() *ProcessImage {
	return &ProcessImage{store: NewDefaultStore()}
}

// readCoil returns the coil value at position. position is an int (not
// Address) so that a request whose Start+offset exceeds the 16-bit range is
// rejected by the bounds check here instead of wrapping around through a
// uint16 truncation. Caller must hold mu.
func (img *ProcessImage) readCoil(position int) (bool, ExceptionCode) {
	if position < 0 || position >= MaxCoils {
		return false, ExcIllegalDataAddress
	}
	if ptr := img.coilBind[position]; ptr != nil {
		return *ptr, ExcNone
	}
	return false, ExcNone
}

// writeCoil sets the coil value at position, silently dropping writes to an
// unbound slot. Caller must hold mu for writing.
func (img *ProcessImage) writeCoil(position int, value bool) ExceptionCode {
	if position < 0 || position >= MaxCoils {
		return ExcIllegalDataAddress
	}
	if ptr := img.coilBind[position]; ptr != nil {
		*ptr = value
	}
	return ExcNone
}

// readDiscrete returns the discrete-input value at position.
func (img *ProcessImage) readDiscrete(position int) (bool, ExceptionCode) {
	if position < 0 || position >= MaxDiscreteInput {
		return false, ExcIllegalDataAddress
	}
	if ptr := img.discreteBind[position]; ptr != nil {
		return *ptr, ExcNone
	}
	return false, ExcNone
}

// readInputReg returns the input-register value at position.
func (img *ProcessImage) readInputReg(position int) (uint16, ExceptionCode) {
	if position < 0 || position >= MaxInputRegs {
		return 0, ExcIllegalDataAddress
	}
	if ptr := img.inputRegBind[position]; ptr != nil {
		return *ptr, ExcNone
	}
	return 0, ExcNone
}

// readHoldingBytes resolves a holding-register address through the width-
// zone rules of spec.md §3 and returns the two big-endian reply bytes.
//
// The Z32/Z64 null-binding fallback intentionally reproduces a defect in
// the original runtime (spec.md §9, Open Question 1): it writes the low
// byte of the default store's holding-register slot at the raw address
// into *both* reply bytes, instead of splitting a 16-bit value. Do not
// "fix" this without updating TestReadHoldingRegisters_NullZ32FallbackQuirk.
func (img *ProcessImage) readHoldingBytes(position int) (hi, lo byte, exc ExceptionCode) {
	switch {
	case position < 0:
		return 0, 0, ExcIllegalDataAddress

	case position <= Min16BRange:
		if ptr := img.analogOutBind[position]; ptr != nil {
			v := *ptr
			return byte(v >> 8), byte(v), ExcNone
		}
		return 0, 0, ExcNone

	case position <= Max16BRange:
		if ptr := img.memWordBind[position-Min16BRange]; ptr != nil {
			v := *ptr
			return byte(v >> 8), byte(v), ExcNone
		}
		return 0, 0, ExcNone

	case position <= Max32BRange:
		idx := (position - Min32BRange) / 2
		if ptr := img.dwordBind[idx]; ptr != nil {
			v := *ptr
			var word uint16
			if (position-Min32BRange)%2 == 0 {
				word = uint16(v >> 16) // first (high) word
			} else {
				word = uint16(v & 0xffff) // second (low) word
			}
			return byte(word >> 8), byte(word), ExcNone
		}
		b := byte(img.store.holdingRegs[position])
		return b, b, ExcNone

	case position <= Max64BRange:
		idx := (position - Min64BRange) / 4
		if ptr := img.qwordBind[idx]; ptr != nil {
			v := *ptr
			var word uint16
			switch (position - Min64BRange) % 4 {
			case 0:
				word = uint16(v >> 48)
			case 1:
				word = uint16(v >> 32)
			case 2:
				word = uint16(v >> 16)
			default:
				word = uint16(v)
			}
			return byte(word >> 8), byte(word), ExcNone
		}
		b := byte(img.store.holdingRegs[position])
		return b, b, ExcNone

	default:
		return 0, 0, ExcIllegalDataAddress
	}
}

// writeHolding applies a 16-bit write through the width-zone rules. For
// Z32/Z64 elements only the word selected by position's offset within the
// element is updated; the other words are preserved via read-modify-write
// masking. When the binding is null inside Z32/Z64, the raw word is
// written to the default store at the raw address (spec.md §4.3, FC=6).
func (img *ProcessImage) writeHolding(position int, value uint16) ExceptionCode {
	switch {
	case position < 0:
		return ExcIllegalDataAddress

	case position <= Min16BRange:
		if ptr := img.analogOutBind[position]; ptr != nil {
			*ptr = value
		}

	case position <= Max16BRange:
		if ptr := img.memWordBind[position-Min16BRange]; ptr != nil {
			*ptr = value
		}

	case position <= Max32BRange:
		idx := (position - Min32BRange) / 2
		if ptr := img.dwordBind[idx]; ptr != nil {
			v32 := uint32(value)
			if (position-Min32BRange)%2 == 0 { // first (high) word
				*ptr = (*ptr & 0x0000ffff) | (v32 << 16)
			} else { // second (low) word
				*ptr = (*ptr & 0xffff0000) | v32
			}
		} else {
			img.store.holdingRegs[position] = value
		}

	case position <= Max64BRange:
		idx := (position - Min64BRange) / 4
		if ptr := img.qwordBind[idx]; ptr != nil {
			v64 := uint64(value)
			switch (position - Min64BRange) % 4 {
			case 0:
				*ptr = (*ptr & 0x0000ffffffffffff) | (v64 << 48)
			case 1:
				*ptr = (*ptr & 0xffff0000ffffffff) | (v64 << 32)
			case 2:
				*ptr = (*ptr & 0xffffffff0000ffff) | (v64 << 16)
			default:
				*ptr = (*ptr & 0xffffffffffff0000) | v64
			}
		} else {
			img.store.holdingRegs[position] = value
		}

	default:
		return ExcIllegalDataAddress
	}
	return ExcNone
}
