package plc

// This file is the Go counterpart of the original runtime's variable-table
// population: a PLC program registers its own I/O variables against Modbus
// addresses, and whatever addresses are left unclaimed fall back to the
// default store (see store.go) so every declared address stays readable and
// writable. Ref: original_source/runtime/core/modbus.cpp mapUnusedIO(), and
// the variable-registration call sites elsewhere in the runtime.

// RegisterDiscreteInput binds a PLC boolean variable to a discrete-input
// address (function code 2). Passing the same address twice overwrites the
// earlier binding.
func (img *ProcessImage) RegisterDiscreteInput(addr Address, v *bool) {
	img.discreteBind[addr] = v
}

// RegisterCoil binds a PLC boolean variable to a coil address (function
// codes 1, 5, 15).
func (img *ProcessImage) RegisterCoil(addr Address, v *bool) {
	img.coilBind[addr] = v
}

// RegisterInputRegister binds a PLC 16-bit variable to an input-register
// address (function code 4).
func (img *ProcessImage) RegisterInputRegister(addr Address, v *uint16) {
	img.inputRegBind[addr] = v
}

// RegisterAnalogOutput binds a PLC 16-bit variable into the Z16-out width
// zone, addresses 0..1024 inclusive.
func (img *ProcessImage) RegisterAnalogOutput(addr Address, v *uint16) {
	img.analogOutBind[addr] = v
}

// RegisterMemoryWord binds a PLC 16-bit variable into the Z16-mem width
// zone, addresses 1024..2047. An address of exactly 1024 is accepted by the
// table but is never reachable through Dispatch: Z16-out claims it first
// (spec.md §3, the address-1024 precedence rule).
func (img *ProcessImage) RegisterMemoryWord(addr Address, v *uint16) {
	img.memWordBind[addr-Min16BRange] = v
}

// RegisterMemoryDWord binds a PLC 32-bit variable to an element of the
// Z32-mem width zone. element is the zero-based element index, not a
// Modbus address; element 0 covers addresses 2048-2049, element 1 covers
// 2050-2051, and so on.
func (img *ProcessImage) RegisterMemoryDWord(element int, v *uint32) {
	img.dwordBind[element] = v
}

// RegisterMemoryQWord binds a PLC 64-bit variable to an element of the
// Z64-mem width zone. element is the zero-based element index; element 0
// covers addresses 4096-4099, element 1 covers 4100-4103, and so on.
func (img *ProcessImage) RegisterMemoryQWord(element int, v *uint64) {
	img.qwordBind[element] = v
}

// BindDefaults fills every still-unbound address in the discrete-input,
// coil, input-register, and Z16 holding-register tables with a pointer into
// the default store, establishing invariant 1 of spec.md §8 (every declared
// address resolves to a non-null binding). Call it once after all
// RegisterXxx calls, before the image is handed to a server.
//
// Z32-mem and Z64-mem elements are deliberately left unbound here: the
// fallback for those zones lives inline in the FC=3/6/16 handlers, reading
// or writing the default store's holding-register slot at the raw address
// rather than through an element pointer (spec.md §4.6).
func (img *ProcessImage) BindDefaults() {
	for i := range img.discreteBind {
		if img.discreteBind[i] == nil {
			img.discreteBind[i] = &img.store.discreteInputs[i]
		}
	}
	for i := range img.coilBind {
		if img.coilBind[i] == nil {
			img.coilBind[i] = &img.store.coils[i]
		}
	}
	for i := range img.inputRegBind {
		if img.inputRegBind[i] == nil {
			img.inputRegBind[i] = &img.store.inputRegs[i]
		}
	}
	for addr := Address(0); addr <= Min16BRange; addr++ {
		if img.analogOutBind[addr] == nil {
			img.analogOutBind[addr] = &img.store.holdingRegs[addr]
		}
	}
	for addr := Address(Min16BRange + 1); addr <= Max16BRange; addr++ {
		idx := addr - Min16BRange
		if img.memWordBind[idx] == nil {
			img.memWordBind[idx] = &img.store.holdingRegs[addr]
		}
	}
}
