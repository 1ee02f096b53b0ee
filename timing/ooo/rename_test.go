package ooo_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/ooo"
)

func rType(rd, rs1, rs2 uint8) *insts.Instruction {
	return &insts.Instruction{
		Type: insts.TypeR,
		Op:   insts.OpOp,
		Rd:   rd,
		Rs1:  rs1,
		Rs2:  rs2,
	}
}

var _ = Describe("RenameUnit", func() {
	var r *ooo.RenameUnit

	BeforeEach(func() {
		r = ooo.NewRenameUnit(nil)
	})

	It("should start with the identity mapping and a full free list", func() {
		for l := uint8(0); l < 32; l++ {
			Expect(r.CurrentMapping(l)).To(Equal(ooo.PhysReg(l)))
			Expect(r.ArchMapping(l)).To(Equal(ooo.PhysReg(l)))
		}
		Expect(r.FreeRegisterCount()).To(Equal(96))
	})

	It("should allocate destinations from the free list in FIFO order", func() {
		res1, ok := r.Rename(rType(1, 0, 0))
		Expect(ok).To(BeTrue())
		Expect(res1.DestPhys).To(Equal(ooo.PhysReg(32)))

		res2, ok := r.Rename(rType(2, 0, 0))
		Expect(ok).To(BeTrue())
		Expect(res2.DestPhys).To(Equal(ooo.PhysReg(33)))

		Expect(r.CurrentMapping(1)).To(Equal(ooo.PhysReg(32)))
		Expect(r.CurrentMapping(2)).To(Equal(ooo.PhysReg(33)))
		Expect(r.FreeRegisterCount()).To(Equal(94))
	})

	It("should resolve sources before allocating the destination", func() {
		// add x1, x1, x1 reads the old mapping of x1 on both sources.
		res, ok := r.Rename(rType(1, 1, 1))
		Expect(ok).To(BeTrue())
		Expect(res.Src1Phys).To(Equal(ooo.PhysReg(1)))
		Expect(res.Src2Phys).To(Equal(ooo.PhysReg(1)))
		Expect(res.DestPhys).To(Equal(ooo.PhysReg(32)))
	})

	It("should never rename x0", func() {
		res, ok := r.Rename(rType(0, 1, 2))
		Expect(ok).To(BeTrue())
		Expect(res.DestPhys).To(Equal(ooo.PhysReg(0)))
		Expect(r.FreeRegisterCount()).To(Equal(96))
		Expect(r.CurrentMapping(0)).To(Equal(ooo.PhysReg(0)))
	})

	It("should mark the destination not ready until writeback", func() {
		res, _ := r.Rename(rType(1, 0, 0))
		Expect(r.IsReady(res.DestPhys)).To(BeFalse())

		r.Writeback(res.DestPhys, 0xDEAD, 0)
		Expect(r.IsReady(res.DestPhys)).To(BeTrue())
		Expect(r.ReadValue(res.DestPhys)).To(Equal(uint32(0xDEAD)))
	})

	It("should forward a written-back value to a later consumer", func() {
		res, _ := r.Rename(rType(1, 0, 0))
		r.Writeback(res.DestPhys, 42, 0)

		consumer, ok := r.Rename(rType(2, 1, 0))
		Expect(ok).To(BeTrue())
		Expect(consumer.Src1Phys).To(Equal(res.DestPhys))
		Expect(consumer.Src1Ready).To(BeTrue())
		Expect(consumer.Src1Value).To(Equal(uint32(42)))
	})

	It("should ignore writebacks to p0", func() {
		r.Writeback(0, 0xFFFF, 0)
		Expect(r.ReadValue(0)).To(Equal(uint32(0)))
	})

	It("should stall when the free list is exhausted", func() {
		for i := 0; i < 96; i++ {
			_, ok := r.Rename(rType(1, 0, 0))
			Expect(ok).To(BeTrue())
		}
		Expect(r.HasFreeRegister()).To(BeFalse())

		_, ok := r.Rename(rType(2, 0, 0))
		Expect(ok).To(BeFalse())
		Expect(r.Stats().Stalls).To(Equal(uint64(1)))

		// A destination-less instruction still renames.
		_, ok = r.Rename(rType(0, 1, 2))
		Expect(ok).To(BeTrue())
	})

	It("should free the displaced register at commit", func() {
		res1, _ := r.Rename(rType(1, 0, 0)) // x1 -> p32
		res2, _ := r.Rename(rType(1, 0, 0)) // x1 -> p33
		Expect(r.FreeRegisterCount()).To(Equal(94))

		// First commit displaces the initial p1, which is architectural
		// and never returns to the free list.
		r.Commit(1, res1.DestPhys)
		Expect(r.FreeRegisterCount()).To(Equal(94))
		Expect(r.ArchMapping(1)).To(Equal(res1.DestPhys))

		// Second commit displaces p32 back onto the free list.
		r.Commit(1, res2.DestPhys)
		Expect(r.FreeRegisterCount()).To(Equal(95))
		Expect(r.ArchMapping(1)).To(Equal(res2.DestPhys))
	})

	It("should recycle a freed register in FIFO order", func() {
		var last ooo.PhysReg
		for i := 0; i < 96; i++ {
			res, _ := r.Rename(rType(1, 0, 0))
			last = res.DestPhys
		}
		Expect(last).To(Equal(ooo.PhysReg(127)))

		// Retire the first two renames; p32 is displaced by p33 and
		// becomes the oldest free register.
		r.Commit(1, 32)
		r.Commit(1, 33)

		res, ok := r.Rename(rType(2, 0, 0))
		Expect(ok).To(BeTrue())
		Expect(res.DestPhys).To(Equal(ooo.PhysReg(32)))
	})

	Describe("flush", func() {
		It("should restore the current map from the architectural map", func() {
			res, _ := r.Rename(rType(1, 0, 0))
			Expect(r.CurrentMapping(1)).To(Equal(res.DestPhys))

			r.Flush()
			Expect(r.CurrentMapping(1)).To(Equal(ooo.PhysReg(1)))
			Expect(r.FreeRegisterCount()).To(Equal(96))
		})

		It("should keep committed mappings and reclaim speculative ones", func() {
			res1, _ := r.Rename(rType(1, 0, 0)) // p32, will commit
			r.Writeback(res1.DestPhys, 7, 0)
			r.Commit(1, res1.DestPhys)

			r.Rename(rType(2, 0, 0)) // p33, speculative
			r.Rename(rType(3, 0, 0)) // p34, speculative

			r.Flush()
			Expect(r.CurrentMapping(1)).To(Equal(res1.DestPhys))
			Expect(r.ArchValue(1)).To(Equal(uint32(7)))
			Expect(r.CurrentMapping(2)).To(Equal(ooo.PhysReg(2)))
			Expect(r.CurrentMapping(3)).To(Equal(ooo.PhysReg(3)))
			// 96 renamable registers minus the one held by x1.
			Expect(r.FreeRegisterCount()).To(Equal(95))
		})

		It("should hand out registers in ascending order after a flush", func() {
			r.Rename(rType(1, 0, 0))
			r.Rename(rType(2, 0, 0))
			r.Flush()

			res, _ := r.Rename(rType(4, 0, 0))
			Expect(res.DestPhys).To(Equal(ooo.PhysReg(32)))
		})
	})

	It("should count renames", func() {
		r.Rename(rType(1, 0, 0))
		r.Rename(rType(2, 0, 0))
		r.Rename(rType(0, 1, 2))
		Expect(r.Stats().Renames).To(Equal(uint64(3)))
	})

	It("should reset to the initial state", func() {
		r.Rename(rType(1, 0, 0))
		r.Reset()
		Expect(r.CurrentMapping(1)).To(Equal(ooo.PhysReg(1)))
		Expect(r.FreeRegisterCount()).To(Equal(96))
		Expect(r.Stats().Renames).To(Equal(uint64(0)))
	})
})
