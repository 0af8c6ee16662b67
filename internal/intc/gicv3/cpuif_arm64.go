//go:build arm64

package gicv3

const (
	iccSreEL1SRE = 1 << 0
	iccIgrpen1EnableBit = 1 << 0
)

//go:noescape
func enableCPUInterface()

//go:noescape
func readICCIAR1EL1() uint32

//go:noescape
func writeICCEOIR1EL1(irq uint32)
