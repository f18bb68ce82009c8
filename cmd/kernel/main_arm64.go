package main

import (
	"unsafe"

	"zixiao/arch/arm64"
)

// pl011Base is the PL011 UART's data register on the ARM virtual
// platform's MMIO window.
const pl011Base = 0x09000000

// putChar writes one byte to the PL011 data register. Flow control
// (checking the transmit-FIFO-full flag before writing) lives with the
// console sink proper, out of scope here.
func putChar(c byte) {
	*(*byte)(unsafe.Pointer(uintptr(pl011Base))) = c
}

func archIdleWait() { arm64.WaitForInterrupt() }
