package hk_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/dashrun/dash/hk"
)

var _ = Describe("Housekeeper", func() {
	var h *hk.Housekeeper

	BeforeEach(func() {
		h = hk.New()
		go h.Run()
		h.WaitStarted()
	})

	AfterEach(func() {
		h.Stop()
	})

	It("runs a registered func after its delay", func() {
		var calls int32
		h.Reg("once", func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return 0
		}, 10*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, time.Second, time.Millisecond).Should(Equal(int32(1)))
	})

	It("reschedules a func that returns a positive delay", func() {
		var calls int32
		h.Reg("repeat", func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return 5 * time.Millisecond
		}, 5*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, time.Second, time.Millisecond).Should(BeNumerically(">=", 3))
	})

	It("does not run an unregistered func", func() {
		var calls int32
		h.Reg("cancelled", func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return 0
		}, 50*time.Millisecond)
		h.Unreg("cancelled")

		Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(int32(0)))
	})

	It("re-registering the same name replaces the pending entry", func() {
		var first, second int32
		h.Reg("dup", func() time.Duration {
			atomic.AddInt32(&first, 1)
			return 0
		}, 5*time.Millisecond)
		h.Reg("dup", func() time.Duration {
			atomic.AddInt32(&second, 1)
			return 0
		}, 5*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&second) }, time.Second, time.Millisecond).Should(Equal(int32(1)))
		Expect(atomic.LoadInt32(&first)).To(Equal(int32(0)))
	})
})
