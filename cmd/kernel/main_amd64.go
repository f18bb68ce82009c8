package main

import (
	"unsafe"

	"zixiao/arch/amd64"
)

// vgaBase is the VGA text-mode buffer's MMIO window on the x86 virtual
// platform. Each cell is two bytes: the character, then its attribute.
const vgaBase = 0xB8000
const vgaCells = 80 * 25

// vgaAttr is light grey on black, the standard default text attribute.
const vgaAttr = 0x07

var vgaCursor int

// putChar writes one byte to the next VGA text buffer cell and advances
// the cursor, wrapping back to the top of the buffer at the end.
// Scrolling and the hardware cursor register live with the console sink
// proper, out of scope here.
func putChar(c byte) {
	cell := (*[2]byte)(unsafe.Pointer(uintptr(vgaBase + vgaCursor*2)))
	cell[0] = c
	cell[1] = vgaAttr
	vgaCursor = (vgaCursor + 1) % vgaCells
}

func archIdleWait() { amd64.WaitForInterrupt() }
