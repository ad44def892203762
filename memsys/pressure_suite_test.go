package memsys_test

import (
	"testing"

	"github.com/ais-cache/memd/cmn"
	"github.com/ais-cache/memd/memsys"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestPressureOracle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pressure Oracle Suite")
}

var _ = Describe("shortage_level", func() {
	var engine *memsys.Engine

	BeforeEach(func() {
		var err error
		engine, err = memsys.NewEngine(memsys.Config{
			MemLimit:              5 * cmn.MiB,
			ItemSizeMax:           cmn.MiB,
			SkipInitialSlabsAlloc: true,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	// Scenario 4: pressure trip.
	It("bootstraps class-0 reservation and trips shortage once headroom crosses the reserved threshold", func() {
		Expect(engine.ShortageLevel()).To(Equal(0))

		const chunk = 900 * cmn.KiB
		bootstrapped := false
		for i := 0; i < 16; i++ {
			if _, err := engine.Alloc(chunk); err != nil {
				break
			}
			if engine.ShortageLevel() > 0 {
				bootstrapped = true
				break
			}
		}
		Expect(bootstrapped).To(BeTrue(), "shortage_level never transitioned above 0")
		Expect(engine.ShortageLevel()).To(BeNumerically(">=", 1))
	})

	// Scenario 5: reservation guard via set_memlimit.
	It("rejects set_memlimit at mem_malloced but accepts double and clears shortage", func() {
		const chunk = 900 * cmn.KiB
		for i := 0; i < 16; i++ {
			if _, err := engine.Alloc(chunk); err != nil {
				break
			}
			if engine.ShortageLevel() > 0 {
				break
			}
		}
		Expect(engine.ShortageLevel()).To(BeNumerically(">=", 1))

		err := engine.SetMemLimit(currentMalloced(engine))
		Expect(err).To(HaveOccurred())

		err = engine.SetMemLimit(currentMalloced(engine) * 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.ShortageLevel()).To(Equal(0))
	})
})

func currentMalloced(e *memsys.Engine) int64 {
	st := make(memsys.StatsMap)
	e.Stats(st)
	return st["mem.malloced"].(int64)
}
