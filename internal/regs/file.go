package regs

// File is a 32-bit register space.
//
// Implementations must perform each Read and Write as a single 32-bit access
// and must not cache values: a WaitUntil loop relies on every Read reaching
// the device.
type File interface {
	Read(addr uint32) uint32
	Write(addr, value uint32)
}

// Access is one recorded register write.
type Access struct {
	Addr  uint32 `json:"addr" yaml:"addr"`
	Value uint32 `json:"value" yaml:"value"`
}

// MapConfig describes a register window backed by a device node or
// image file. Register address Base maps to byte Offset of Path.
type MapConfig struct {
	Path   string
	Base   uint32
	Size   uint32
	Offset int64
}
