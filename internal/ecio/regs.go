// Package ecio exposes the laptop embedded controller register file
// (/sys/kernel/debug/ec/ec0/io, provided by the ec_sys module) as a set of
// single-byte registers at fixed offsets.
package ecio

// DefaultPath is where ec_sys publishes the EC register file when loaded
// with write_support=1.
const DefaultPath = "/sys/kernel/debug/ec/ec0/io"

// Register offsets. These are a hardware contract for the Omen EC and must
// not change.
const (
	Fan1Duty        int64 = 0x34 // 52
	Fan2Duty        int64 = 0x35 // 53
	CPUTemp         int64 = 0x57 // 87
	BIOSControl     int64 = 0x62 // 98
	BIOSTimer       int64 = 0x63 // 99
	PerformanceMode int64 = 0x95 // 149
	GPUTemp         int64 = 0xB7 // 183
)

// Register values.
const (
	BIOSEnabled  byte = 0
	BIOSDisabled byte = 6
	TimerReset   byte = 0

	ModePerformance byte = 0x31
	ModePowersave   byte = 0x30
)

// Per-fan maximum duty bytes. Duty percentages are scaled against these.
const (
	Fan1Max byte = 55
	Fan2Max byte = 57
)
