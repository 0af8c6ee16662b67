// Package bootcfg parses a YAML board/boot descriptor used by tests and by
// the cmd/fsck host tool to stand in for a real boot stub's
// bootinfo.Handoff (spec §6). Production boot hand-off is built in Go by the
// (out-of-scope) boot stub; this is only the test/tool-facing serialization.
package bootcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Acteus/vibos/internal/bootinfo"
)

// MemoryRegion mirrors bootinfo.MemoryMapEntry in a YAML-friendly shape.
type MemoryRegion struct {
	Start  uint64 `yaml:"start"`
	Length uint64 `yaml:"length"`
	Type   string `yaml:"type"`
}

// Framebuffer mirrors bootinfo.Framebuffer.
type Framebuffer struct {
	PhysBase   uint64 `yaml:"phys_base"`
	Width      uint32 `yaml:"width"`
	Height     uint32 `yaml:"height"`
	PitchBytes uint32 `yaml:"pitch_bytes"`
	BitsPerPel uint32 `yaml:"bits_per_pixel"`
}

// Board is the top-level descriptor.
type Board struct {
	Arch        string        `yaml:"arch"`
	Memory      []MemoryRegion `yaml:"memory"`
	Framebuffer *Framebuffer  `yaml:"framebuffer,omitempty"`
	UARTBase    uint64        `yaml:"uart_base"`
	BlockImage  string        `yaml:"block_image,omitempty"`
}

var memTypes = map[string]bootinfo.MemoryType{
	"usable":             bootinfo.MemoryUsable,
	"loader-reclaimable": bootinfo.MemoryLoaderReclaimable,
	"firmware-data":      bootinfo.MemoryFirmwareData,
	"acpi-reclaim":       bootinfo.MemoryACPIReclaim,
	"acpi-nvs":           bootinfo.MemoryACPINVS,
	"mmio":               bootinfo.MemoryMMIO,
	"reserved":           bootinfo.MemoryReserved,
	"bad":                bootinfo.MemoryBad,
}

// Load parses a Board descriptor from a YAML file.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootcfg: read %s: %w", path, err)
	}
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bootcfg: parse %s: %w", path, err)
	}
	return &b, nil
}

// Handoff converts the descriptor into a bootinfo.Handoff for feeding
// directly into kernel initialization in tests.
func (b *Board) Handoff() (bootinfo.Handoff, error) {
	h := bootinfo.Handoff{}
	switch b.Arch {
	case "arm64":
		h.Arch = bootinfo.ArchARM64
	case "amd64":
		h.Arch = bootinfo.ArchAMD64
	default:
		return h, fmt.Errorf("bootcfg: unknown arch %q", b.Arch)
	}
	for _, r := range b.Memory {
		t, ok := memTypes[r.Type]
		if !ok {
			return h, fmt.Errorf("bootcfg: unknown memory type %q", r.Type)
		}
		h.MemoryMap = append(h.MemoryMap, bootinfo.MemoryMapEntry{
			Start: r.Start, Length: r.Length, Type: t,
		})
	}
	if b.Framebuffer != nil {
		h.Framebuffer = &bootinfo.Framebuffer{
			PhysBase:   b.Framebuffer.PhysBase,
			Width:      b.Framebuffer.Width,
			Height:     b.Framebuffer.Height,
			PitchBytes: b.Framebuffer.PitchBytes,
			BitsPerPel: b.Framebuffer.BitsPerPel,
		}
	}
	return h, nil
}
