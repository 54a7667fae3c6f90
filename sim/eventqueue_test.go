package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func nopAction(_ *Clock) any {
	return nil
}

var _ = Describe("EventQueue", func() {
	var queue *EventQueue

	BeforeEach(func() {
		queue = NewEventQueue()
	})

	It("should assign monotonic ids starting at 1", func() {
		for i := 0; i < 5; i++ {
			id := queue.Add(nopAction, VTime(i), 0)
			Expect(id).To(Equal(EventID(i + 1)))
		}

		Expect(queue.LastID()).To(Equal(EventID(5)))
		Expect(queue.Len()).To(Equal(5))
	})

	It("should return the sentinel on an empty queue", func() {
		t, actions, ids := queue.Next()

		Expect(t).To(Equal(NoEventTime))
		Expect(actions).To(BeEmpty())
		Expect(ids).To(BeEmpty())
		Expect(queue.Len()).To(Equal(0))
	})

	It("should extract batches in time order", func() {
		queue.Add(nopAction, 3.0, 0)
		queue.Add(nopAction, 1.0, 0)
		queue.Add(nopAction, 2.0, 0)

		t1, _, _ := queue.Next()
		t2, _, _ := queue.Next()
		t3, _, _ := queue.Next()

		Expect(t1).To(Equal(VTime(1.0)))
		Expect(t2).To(Equal(VTime(2.0)))
		Expect(t3).To(Equal(VTime(3.0)))
	})

	It("should keep insertion order within a batch", func() {
		id1 := queue.Add(nopAction, 1.0, 0)
		id2 := queue.Add(nopAction, 1.0, 0)
		id3 := queue.Add(nopAction, 1.0, 0)

		t, actions, ids := queue.Next()

		Expect(t).To(Equal(VTime(1.0)))
		Expect(actions).To(HaveLen(3))
		Expect(ids).To(Equal([]EventID{id1, id2, id3}))
	})

	It("should group events by quantized time", func() {
		queue.Add(nopAction, 2.0003, 0)
		queue.Add(nopAction, 2.0007, 0)
		queue.Add(nopAction, 2.0012, 0)

		_, actions, _ := queue.Next()
		Expect(actions).To(HaveLen(2))

		_, actions, _ = queue.Next()
		Expect(actions).To(HaveLen(1))
	})

	It("should filter deleted events lazily", func() {
		id1 := queue.Add(nopAction, 1.0, 0)
		id2 := queue.Add(nopAction, 1.0, 0)

		queue.Delete(id2)

		Expect(queue.Len()).To(Equal(1))

		t, actions, ids := queue.Next()
		Expect(t).To(Equal(VTime(1.0)))
		Expect(actions).To(HaveLen(1))
		Expect(ids).To(Equal([]EventID{id1}))
	})

	It("should ignore deleting unknown ids", func() {
		queue.Add(nopAction, 1.0, 0)
		queue.Delete(42)

		Expect(queue.Len()).To(Equal(1))
	})

	It("should consume one-shot events", func() {
		id := queue.Add(nopAction, 1.0, 0)

		queue.Next()

		Expect(queue.Len()).To(Equal(0))
		Expect(queue.events).NotTo(HaveKey(id))
	})

	It("should reschedule recurring events at dueTime+cycle", func() {
		id := queue.Add(nopAction, 1.0, 2.0)

		t, actions, _ := queue.Next()

		Expect(t).To(Equal(VTime(1.0)))
		Expect(actions).To(HaveLen(1))
		Expect(queue.Len()).To(Equal(1))
		Expect(queue.events[id].time).To(Equal(VTime(3.0)))
		Expect(queue.buckets).To(HaveKey(int64(3000)))
		Expect(queue.buckets[int64(3000)].ids).To(ContainElement(id))
	})

	It("should re-home an event when its time is updated", func() {
		id1 := queue.Add(nopAction, 1.0, 0)
		queue.Add(nopAction, 1.0, 0)
		queue.Add(nopAction, 2.0, 0)

		queue.UpdateTime(id1, 3.0)

		Expect(queue.events[id1].time).To(Equal(VTime(3.0)))
		Expect(queue.buckets).To(HaveKey(int64(3000)))
		Expect(queue.buckets[int64(3000)].ids).To(Equal([]EventID{id1}))
		Expect(queue.buckets[int64(1000)].ids).NotTo(ContainElement(id1))
	})

	It("should drop a bucket that re-homing empties", func() {
		id := queue.Add(nopAction, 1.0, 0)
		queue.Add(nopAction, 2.0, 0)

		queue.UpdateTime(id, 2.0)

		Expect(queue.buckets).NotTo(HaveKey(int64(1000)))

		t, actions, _ := queue.Next()
		Expect(t).To(Equal(VTime(2.0)))
		Expect(actions).To(HaveLen(2))
	})

	It("should leave the old bucket time untouched when re-homing", func() {
		queue.Add(nopAction, 1.0, 0)
		id2 := queue.Add(nopAction, 1.0, 0)

		queue.UpdateTime(id2, 5.0)

		Expect(queue.buckets[int64(1000)].time).To(Equal(VTime(1.0)))
	})

	It("should update cycle and action in place", func() {
		ch := make(chan int, 1)
		id := queue.Add(nopAction, 1.0, 0)

		queue.UpdateCycle(id, 2.0)
		queue.UpdateCycle(id, 2.0)
		queue.UpdateAction(id, func(_ *Clock) any {
			ch <- 7
			return nil
		})

		Expect(queue.events[id].cycle).To(Equal(VTime(2.0)))

		_, actions, _ := queue.Next()
		actions[0](nil)
		Expect(<-ch).To(Equal(7))
	})

	It("should ignore updates for unknown ids", func() {
		queue.Add(nopAction, 1.0, 0)

		queue.UpdateTime(42, 3.0)
		queue.UpdateCycle(42, 1.0)
		queue.UpdateAction(42, nopAction)

		Expect(queue.Len()).To(Equal(1))
		Expect(queue.buckets).To(HaveLen(1))
	})

	It("should report the earliest due time without extracting", func() {
		Expect(queue.PeekTime()).To(Equal(NoEventTime))

		queue.Add(nopAction, 2.0, 0)
		queue.Add(nopAction, 1.0, 0)

		Expect(queue.PeekTime()).To(Equal(VTime(1.0)))
		Expect(queue.Len()).To(Equal(2))
	})

	It("should snapshot live events ordered by id", func() {
		queue.Add(nopAction, 2.0, 0)
		id2 := queue.Add(nopAction, 1.0, 0.5)
		queue.Delete(1)

		infos := queue.Snapshot()

		Expect(infos).To(Equal([]EventInfo{
			{ID: id2, Time: 1.0, Cycle: 0.5},
		}))
	})
})
