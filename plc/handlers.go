package plc

// Each handler below mutates buf in place and returns the reply length, the
// same signature and byte-level behavior as the original runtime's per-
// function handlers (original_source/runtime/core/modbus.cpp). They all
// follow the same "deferred error" discipline: a bulk read or write walks
// every requested address even after it finds one out of range, and only
// turns the in-progress reply into an exception once the loop finishes.
// Earlier bytes already written to buf are not rolled back.

// handleReadCoils implements function code 1.
func handleReadCoils(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncReadCoils, ExcIllegalDataValue)
	}
	return readBits(img, buf, FuncReadCoils, img.readCoil)
}

// handleReadDiscreteInputs implements function code 2.
func handleReadDiscreteInputs(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncReadDiscreteInputs, ExcIllegalDataValue)
	}
	return readBits(img, buf, FuncReadDiscreteInputs, img.readDiscrete)
}

// readBits is shared by FC=1 and FC=2: both pack one bit per requested
// address, LSB first within each byte, and share the same byte-count and
// address-range exception rules.
func readBits(img *ProcessImage, buf []byte, fc FunctionCode, read func(int) (bool, ExceptionCode)) int {
	start := int(getUint16(buf, offData))
	quantity := int(getUint16(buf, offData+2))

	byteCount := quantity / 8
	if byteCount*8 < quantity {
		byteCount++
	}
	if byteCount > 255 {
		return writeException(buf, fc, ExcIllegalDataAddress)
	}

	putUint16(buf, offLength, uint16(byteCount+3))
	buf[offData] = byte(byteCount)

	exc := ExcNone
	img.mu.RLock()
	for i := 0; i < byteCount; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			position := start + i*8 + j
			if position >= MaxCoils {
				exc = ExcIllegalDataAddress
				continue
			}
			bit, e := read(position)
			if e != ExcNone {
				exc = e
				continue
			}
			if bit {
				b |= 1 << uint(j)
			}
		}
		buf[offData+1+i] = b
	}
	img.mu.RUnlock()

	if exc != ExcNone {
		return writeException(buf, fc, exc)
	}
	return byteCount + 9
}

// handleReadHoldingRegisters implements function code 3.
func handleReadHoldingRegisters(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncReadHoldingRegisters, ExcIllegalDataValue)
	}
	start := int(getUint16(buf, offData))
	quantity := int(getUint16(buf, offData+2))
	byteCount := quantity * 2
	if byteCount > 255 {
		return writeException(buf, FuncReadHoldingRegisters, ExcIllegalDataAddress)
	}

	putUint16(buf, offLength, uint16(byteCount+3))
	buf[offData] = byte(byteCount)

	exc := ExcNone
	img.mu.RLock()
	for i := 0; i < quantity; i++ {
		hi, lo, e := img.readHoldingBytes(start + i)
		if e != ExcNone {
			exc = e
			continue
		}
		buf[offData+1+i*2] = hi
		buf[offData+2+i*2] = lo
	}
	img.mu.RUnlock()

	if exc != ExcNone {
		return writeException(buf, FuncReadHoldingRegisters, exc)
	}
	return byteCount + 9
}

// handleReadInputRegisters implements function code 4.
func handleReadInputRegisters(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncReadInputRegisters, ExcIllegalDataValue)
	}
	start := int(getUint16(buf, offData))
	quantity := int(getUint16(buf, offData+2))
	byteCount := quantity * 2
	if byteCount > 255 {
		return writeException(buf, FuncReadInputRegisters, ExcIllegalDataAddress)
	}

	putUint16(buf, offLength, uint16(byteCount+3))
	buf[offData] = byte(byteCount)

	exc := ExcNone
	img.mu.RLock()
	for i := 0; i < quantity; i++ {
		position := start + i
		if position >= MaxInputRegs {
			exc = ExcIllegalDataAddress
			continue
		}
		v, e := img.readInputReg(position)
		if e != ExcNone {
			exc = e
			continue
		}
		putUint16(buf, offData+1+i*2, v)
	}
	img.mu.RUnlock()

	if exc != ExcNone {
		return writeException(buf, FuncReadInputRegisters, exc)
	}
	return byteCount + 9
}

// handleWriteSingleCoil implements function code 5. Any non-zero request
// value turns the coil on, matching the original's word(hi,lo) > 0 check
// rather than requiring the canonical 0xFF00.
func handleWriteSingleCoil(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncWriteSingleCoil, ExcIllegalDataValue)
	}
	addr := getUint16(buf, offData)
	value := getUint16(buf, offData+2)

	img.mu.Lock()
	exc := img.writeCoil(int(addr), value > 0)
	img.mu.Unlock()

	if exc != ExcNone {
		return writeException(buf, FuncWriteSingleCoil, exc)
	}
	putUint16(buf, offLength, 6)
	return 12
}

// handleWriteSingleRegister implements function code 6.
func handleWriteSingleRegister(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncWriteSingleRegister, ExcIllegalDataValue)
	}
	addr := getUint16(buf, offData)
	value := getUint16(buf, offData+2)

	img.mu.Lock()
	exc := img.writeHolding(int(addr), value)
	img.mu.Unlock()

	if exc != ExcNone {
		return writeException(buf, FuncWriteSingleRegister, exc)
	}
	putUint16(buf, offLength, 6)
	return 12
}

// handleWriteMultipleCoils implements function code 15 (0x0F).
func handleWriteMultipleCoils(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncWriteMultipleCoils, ExcIllegalDataValue)
	}
	start := int(getUint16(buf, offData))
	quantity := int(getUint16(buf, offData+2))

	byteCount := quantity / 8
	if byteCount*8 < quantity {
		byteCount++
	}
	if n < 13+byteCount || int(buf[offData+4]) != byteCount {
		return writeException(buf, FuncWriteMultipleCoils, ExcIllegalDataValue)
	}

	exc := ExcNone
	img.mu.Lock()
	for i := 0; i < byteCount; i++ {
		for j := 0; j < 8; j++ {
			position := start + i*8 + j
			if position >= MaxCoils {
				exc = ExcIllegalDataAddress
				continue
			}
			bit := buf[offData+5+i]&(1<<uint(j)) != 0
			if e := img.writeCoil(position, bit); e != ExcNone {
				exc = e
			}
		}
	}
	img.mu.Unlock()

	if exc != ExcNone {
		return writeException(buf, FuncWriteMultipleCoils, exc)
	}
	putUint16(buf, offLength, 6)
	return 12
}

// handleWriteMultipleRegisters implements function code 16 (0x10).
//
// The original runtime's 32/64-bit branches mix a request-wide Start
// address into the element/word-select math that should use the
// per-iteration position, corrupting writes beyond the first register of
// a multi-register request (spec.md §9, Open Question 2). writeHolding
// below is driven entirely by position, which fixes that.
func handleWriteMultipleRegisters(img *ProcessImage, buf []byte, n int) int {
	if n < 12 {
		return writeException(buf, FuncWriteMultipleRegisters, ExcIllegalDataValue)
	}
	start := int(getUint16(buf, offData))
	quantity := int(getUint16(buf, offData+2))
	byteCount := quantity * 2

	if n < 13+byteCount || int(buf[offData+4]) != byteCount {
		return writeException(buf, FuncWriteMultipleRegisters, ExcIllegalDataValue)
	}

	exc := ExcNone
	img.mu.Lock()
	for i := 0; i < quantity; i++ {
		position := start + i
		value := getUint16(buf, offData+5+i*2)
		if e := img.writeHolding(position, value); e != ExcNone {
			exc = e
		}
	}
	img.mu.Unlock()

	if exc != ExcNone {
		return writeException(buf, FuncWriteMultipleRegisters, exc)
	}
	putUint16(buf, offLength, 6)
	return 12
}
