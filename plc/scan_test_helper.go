package plc

// WithScanLock runs fn while holding the process image's write lock. It
// models the external scan-cycle collaborator described in spec.md §5: the
// runtime's logic-execution loop and the Modbus request handlers never run
// concurrently against the same binding, because both sides take the same
// mutex.
func (img *ProcessImage) WithScanLock(fn func()) {
	img.mu.Lock()
	defer img.mu.Unlock()
	fn()
}
