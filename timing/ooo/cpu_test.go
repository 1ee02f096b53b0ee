package ooo_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/timing/ooo"
)

const entryPoint = 0x1000

// loadProgram places instruction words at the entry point.
func loadProgram(mem *emu.Memory, words ...uint32) {
	for i, w := range words {
		mem.Write32(entryPoint+uint32(4*i), w)
	}
}

func runProgram(words ...uint32) *ooo.CPU {
	mem := emu.NewMemory()
	loadProgram(mem, words...)
	cpu := ooo.NewCPU(mem, ooo.WithEntryPoint(entryPoint))
	cpu.Run(100000)
	return cpu
}

var _ = Describe("CPU", func() {
	It("should run a straight-line arithmetic program", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x00700113, // addi x2, x0, 7
			0x002081B3, // add  x3, x1, x2
			0x05D00893, // addi x17, x0, 93
			0x02A00513, // addi x10, x0, 42
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
		Expect(cpu.ArchReg(1)).To(Equal(uint32(5)))
		Expect(cpu.ArchReg(2)).To(Equal(uint32(7)))
		Expect(cpu.ArchReg(3)).To(Equal(uint32(12)))
		Expect(cpu.Stats().Instructions).To(Equal(uint64(6)))
		Expect(cpu.Stats().Flushes).To(Equal(uint64(0)))
	})

	It("should forward results through a dependency chain", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x001080B3, // add  x1, x1, x1
			0x001080B3, // add  x1, x1, x1
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ArchReg(1)).To(Equal(uint32(20)))
	})

	It("should store to and load from memory", func() {
		cpu := runProgram(
			0x10000093, // addi x1, x0, 256
			0x00700113, // addi x2, x0, 7
			0x0020A023, // sw   x2, 0(x1)
			0x0000A183, // lw   x3, 0(x1)
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ArchReg(3)).To(Equal(uint32(7)))
	})

	It("should redirect a taken branch at commit and flush the wrong path", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x00500113, // addi x2, x0, 5
			0x00208463, // beq  x1, x2, +8
			0x00100513, // addi x10, x0, 1   (wrong path)
			0x02A00513, // addi x10, x0, 42
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
		Expect(cpu.Stats().Flushes).To(Equal(uint64(1)))
		// The wrong-path instruction never commits.
		Expect(cpu.Stats().Instructions).To(Equal(uint64(6)))
	})

	It("should fall through a not-taken branch without flushing", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x00700113, // addi x2, x0, 7
			0x00208463, // beq  x1, x2, +8  (not taken)
			0x02A00513, // addi x10, x0, 42
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
		Expect(cpu.Stats().Flushes).To(Equal(uint64(0)))
	})

	It("should jump over the wrong path with jal", func() {
		cpu := runProgram(
			0x0080006F, // jal  x0, +8
			0x00100513, // addi x10, x0, 1   (wrong path)
			0x02A00513, // addi x10, x0, 42
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
		Expect(cpu.Stats().Flushes).To(Equal(uint64(1)))
	})

	It("should link the return address on jal", func() {
		cpu := runProgram(
			0x008000EF, // jal  x1, +8
			0x00100513, // addi x10, x0, 1   (wrong path)
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ArchReg(1)).To(Equal(uint32(entryPoint + 4)))
	})

	It("should drain and halt at undecodable memory", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(0))
		Expect(cpu.ArchReg(1)).To(Equal(uint32(5)))
	})

	It("should keep x0 zero", func() {
		cpu := runProgram(
			0x00500013, // addi x0, x0, 5
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ArchReg(0)).To(Equal(uint32(0)))
	})

	It("should stop at the cycle limit without halting", func() {
		mem := emu.NewMemory()
		loadProgram(mem,
			0x0000006F, // jal x0, 0 (spin)
		)
		cpu := ooo.NewCPU(mem, ooo.WithEntryPoint(entryPoint))
		ran := cpu.Run(100)
		Expect(ran).To(Equal(uint64(100)))
		Expect(cpu.Halted()).To(BeFalse())
	})

	It("should honor a custom load latency", func() {
		slow := latency.DefaultConfig()
		slow.LoadLatency = 10

		program := []uint32{
			0x10000093, // addi x1, x0, 256
			0x0000A183, // lw   x3, 0(x1)
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall (exit)
		}

		fastMem := emu.NewMemory()
		loadProgram(fastMem, program...)
		fast := ooo.NewCPU(fastMem, ooo.WithEntryPoint(entryPoint))
		fast.Run(100000)

		slowMem := emu.NewMemory()
		loadProgram(slowMem, program...)
		slowCPU := ooo.NewCPU(slowMem,
			ooo.WithEntryPoint(entryPoint),
			ooo.WithConfig(slow))
		slowCPU.Run(100000)

		Expect(slowCPU.Halted()).To(BeTrue())
		Expect(slowCPU.Stats().Cycles).To(BeNumerically(">", fast.Stats().Cycles))
	})

	It("should count rename stalls when the free list runs dry", func() {
		cfg := latency.DefaultConfig()
		cfg.ROBEntries = 128
		cfg.LoadLatency = 400

		// The load pins the commit head for 400 cycles while the front
		// end keeps allocating destination registers, so the 96-entry
		// free list empties before the load retires.
		words := []uint32{
			0x00002083, // lw x1, 0(x0)
		}
		for i := 0; i < 100; i++ {
			words = append(words, 0x00100113) // addi x2, x0, 1
		}
		words = append(words,
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall (exit)
		)

		mem := emu.NewMemory()
		loadProgram(mem, words...)
		cpu := ooo.NewCPU(mem,
			ooo.WithEntryPoint(entryPoint),
			ooo.WithConfig(cfg))
		cpu.Run(100000)

		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(0))
		Expect(cpu.RenameStats().Stalls).To(BeNumerically(">", uint64(0)))
	})

	It("should report a CPI above zero", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Stats().CPI()).To(BeNumerically(">", 0))
	})

	It("should reset to a runnable state", func() {
		mem := emu.NewMemory()
		loadProgram(mem,
			0x05D00893, // addi x17, x0, 93
			0x02A00513, // addi x10, x0, 42
			0x00000073, // ecall (exit)
		)
		cpu := ooo.NewCPU(mem, ooo.WithEntryPoint(entryPoint))
		cpu.Run(100000)
		Expect(cpu.Halted()).To(BeTrue())

		cpu.Reset(entryPoint)
		Expect(cpu.Halted()).To(BeFalse())
		Expect(cpu.Stats().Instructions).To(Equal(uint64(0)))

		cpu.Run(100000)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
	})
})

var _ = Describe("CPU syscalls", func() {
	It("should write committed memory to stdout and keep running", func() {
		var stdout, stderr bytes.Buffer
		mem := emu.NewMemory()
		loadProgram(mem,
			0x10000093, // addi x1, x0, 256
			0x06800113, // addi x2, x0, 'h'
			0x00208023, // sb   x2, 0(x1)
			0x06900113, // addi x2, x0, 'i'
			0x002080A3, // sb   x2, 1(x1)
			0x04000893, // addi x17, x0, 64
			0x00100513, // addi x10, x0, 1
			0x00008593, // addi x11, x1, 0
			0x00200613, // addi x12, x0, 2
			0x00000073, // ecall (write)
			0x05D00893, // addi x17, x0, 93
			0x02A00513, // addi x10, x0, 42
			0x00000073, // ecall (exit)
		)
		cpu := ooo.NewCPU(mem,
			ooo.WithEntryPoint(entryPoint),
			ooo.WithStdio(nil, &stdout, &stderr))
		cpu.Run(100000)

		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(42))
		Expect(stdout.String()).To(Equal("hi"))
		Expect(stderr.String()).To(BeEmpty())
	})

	It("should return the byte count from write in a0", func() {
		var stdout bytes.Buffer
		mem := emu.NewMemory()
		loadProgram(mem,
			0x10000093, // addi x1, x0, 256
			0x06800113, // addi x2, x0, 'h'
			0x00208023, // sb   x2, 0(x1)
			0x04000893, // addi x17, x0, 64
			0x00100513, // addi x10, x0, 1
			0x00008593, // addi x11, x1, 0
			0x00100613, // addi x12, x0, 1
			0x00000073, // ecall (write)
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall (exit, status = write result)
		)
		cpu := ooo.NewCPU(mem,
			ooo.WithEntryPoint(entryPoint),
			ooo.WithStdio(nil, &stdout, nil))
		cpu.Run(100000)

		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(1))
		Expect(stdout.String()).To(Equal("h"))
	})

	It("should continue past an unknown syscall", func() {
		cpu := runProgram(
			0x00000073, // ecall (a7 = 0, unknown)
			0x05D00893, // addi x17, x0, 93
			0x00700513, // addi x10, x0, 7
			0x00000073, // ecall (exit)
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(7))
		Expect(cpu.Stats().Instructions).To(Equal(uint64(4)))
	})

	It("should halt at ebreak", func() {
		cpu := runProgram(
			0x00500093, // addi x1, x0, 5
			0x00100073, // ebreak
		)
		Expect(cpu.Halted()).To(BeTrue())
		Expect(cpu.ExitCode()).To(Equal(0))
		Expect(cpu.ArchReg(1)).To(Equal(uint32(5)))
	})
})
