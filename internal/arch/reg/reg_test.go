package reg

import (
	"testing"
	"unsafe"
)

func TestReadWrite32(t *testing.T) {
	var word uint32
	addr := uint64(uintptr(unsafe.Pointer(&word)))

	Write32(addr, 0xCAFEBABE)
	if got := Read32(addr); got != 0xCAFEBABE {
		t.Fatalf("Read32 = %#x, want %#x", got, 0xCAFEBABE)
	}
}

func TestReadWrite64(t *testing.T) {
	var word uint64
	addr := uint64(uintptr(unsafe.Pointer(&word)))

	Write64(addr, 0x1122334455667788)
	if got := Read64(addr); got != 0x1122334455667788 {
		t.Fatalf("Read64 = %#x, want %#x", got, 0x1122334455667788)
	}
}

func TestReadWrite8(t *testing.T) {
	var b uint8
	addr := uint64(uintptr(unsafe.Pointer(&b)))

	Write8(addr, 0x42)
	if got := Read8(addr); got != 0x42 {
		t.Fatalf("Read8 = %#x, want %#x", got, 0x42)
	}
}

func TestSetClearBits32(t *testing.T) {
	var word uint32 = 0x0F
	addr := uint64(uintptr(unsafe.Pointer(&word)))

	SetBits32(addr, 0xF0)
	if word != 0xFF {
		t.Fatalf("after SetBits32, word = %#x, want %#x", word, 0xFF)
	}
	ClearBits32(addr, 0x0F)
	if word != 0xF0 {
		t.Fatalf("after ClearBits32, word = %#x, want %#x", word, 0xF0)
	}
}

func TestWaitSetClear32(t *testing.T) {
	var word uint32
	addr := uint64(uintptr(unsafe.Pointer(&word)))

	if WaitSet32(addr, 0x1, 10) {
		t.Fatal("WaitSet32 should time out when the bit never sets")
	}
	word = 0x1
	if !WaitSet32(addr, 0x1, 10) {
		t.Fatal("WaitSet32 should succeed once the bit is set")
	}
	if !WaitClear32(addr, 0x2, 10) {
		t.Fatal("WaitClear32 should succeed when the bit is already clear")
	}
}
