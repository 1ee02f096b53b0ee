package emu

import "io"

// RV32 Linux syscall numbers.
const (
	SyscallRead  uint32 = 63  // read(fd, buf, count)
	SyscallWrite uint32 = 64  // write(fd, buf, count)
	SyscallExit  uint32 = 93  // exit(status)
	SyscallBrk   uint32 = 214 // brk(addr)
)

// Linux error codes.
const (
	EBADF  = 9  // Bad file descriptor
	ENOSYS = 38 // Function not implemented
	EIO    = 5  // I/O error
)

// SyscallRegs is the committed register state a syscall reads and
// writes.
type SyscallRegs interface {
	ReadReg(r uint8) uint32
	WriteReg(r uint8, value uint32)
}

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int
}

// SyscallHandler is the interface for handling RV32 syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register state.
	// RISC-V Linux syscall convention:
	//   - Syscall number in a7 (x17)
	//   - Arguments in a0-a2 (x10-x12)
	//   - Return value in a0
	Handle() SyscallResult
}

// DefaultSyscallHandler provides a basic syscall handler implementation.
type DefaultSyscallHandler struct {
	regs   SyscallRegs
	memory *Memory
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(regs SyscallRegs, memory *Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		regs:   regs,
		memory: memory,
		stdin:  nil,
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// Handle executes the syscall indicated by the register state.
func (h *DefaultSyscallHandler) Handle() SyscallResult {
	syscallNum := h.regs.ReadReg(17)

	switch syscallNum {
	case SyscallRead:
		return h.handleRead()
	case SyscallWrite:
		return h.handleWrite()
	case SyscallExit:
		return h.handleExit()
	case SyscallBrk:
		return h.handleBrk()
	default:
		return h.handleUnknown()
	}
}

// handleExit handles the exit syscall (93).
func (h *DefaultSyscallHandler) handleExit() SyscallResult {
	return SyscallResult{
		Exited:   true,
		ExitCode: int(int32(h.regs.ReadReg(10))),
	}
}

// handleRead handles the read syscall (63).
func (h *DefaultSyscallHandler) handleRead() SyscallResult {
	fd := h.regs.ReadReg(10)
	bufPtr := h.regs.ReadReg(11)
	count := h.regs.ReadReg(12)

	// Only stdin (fd=0) is supported for now
	if fd != 0 {
		h.setError(EBADF)
		return SyscallResult{}
	}

	// If no stdin is configured, return EOF
	if h.stdin == nil {
		h.regs.WriteReg(10, 0)
		return SyscallResult{}
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		// EOF or error with no bytes read
		h.regs.WriteReg(10, 0)
		return SyscallResult{}
	}

	for i := 0; i < n; i++ {
		h.memory.Write8(bufPtr+uint32(i), buf[i])
	}

	h.regs.WriteReg(10, uint32(n))
	return SyscallResult{}
}

// handleWrite handles the write syscall (64).
func (h *DefaultSyscallHandler) handleWrite() SyscallResult {
	fd := h.regs.ReadReg(10)
	bufPtr := h.regs.ReadReg(11)
	count := h.regs.ReadReg(12)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	default:
		h.setError(EBADF)
		return SyscallResult{}
	}

	buf := make([]byte, count)
	for i := uint32(0); i < count; i++ {
		buf[i] = h.memory.Read8(bufPtr + i)
	}

	n, err := writer.Write(buf)
	if err != nil {
		h.setError(EIO)
		return SyscallResult{}
	}

	h.regs.WriteReg(10, uint32(n))
	return SyscallResult{}
}

// handleBrk handles the brk syscall (214). The flat memory allocates
// pages on first touch, so the requested break is always granted.
func (h *DefaultSyscallHandler) handleBrk() SyscallResult {
	h.regs.WriteReg(10, h.regs.ReadReg(10))
	return SyscallResult{}
}

// handleUnknown handles unrecognized syscalls.
func (h *DefaultSyscallHandler) handleUnknown() SyscallResult {
	h.setError(ENOSYS)
	return SyscallResult{}
}

// setError sets a0 to -errno (as two's complement).
func (h *DefaultSyscallHandler) setError(errno int) {
	h.regs.WriteReg(10, uint32(-int32(errno)))
}
