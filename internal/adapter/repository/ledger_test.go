package repository_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/usecase"
)

// expectOutcomeMatchesStatus checks that result and error agree with the
// status of a job.
func expectOutcomeMatchesStatus(j domain.Job) {
	result, hasResult := j.Result()
	msg, hasError := j.Error()
	switch j.Status {
	case domain.StatusSuccess:
		Expect(hasResult).To(BeTrue())
		Expect(result).ToNot(BeEmpty())
		Expect(hasError).To(BeFalse())
		Expect(j.FinishedAt).ToNot(BeNil())
	case domain.StatusFailed:
		Expect(hasError).To(BeTrue())
		Expect(msg).ToNot(BeEmpty())
		Expect(hasResult).To(BeFalse())
		Expect(j.FinishedAt).ToNot(BeNil())
	default:
		Expect(hasResult).To(BeFalse())
		Expect(hasError).To(BeFalse())
		Expect(j.Outcome).To(Equal(domain.Pending{}))
	}
}

func expectKind(err error, kind domain.ErrorKind) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	k, ok := domain.KindOf(err)
	ExpectWithOffset(1, ok).To(BeTrue(), "untyped error: %v", err)
	ExpectWithOffset(1, k).To(Equal(kind))
}

var _ = Describe("Ledger", func() {
	for _, b := range backends {
		b := b
		Context(b.name, func() {
			var (
				ctx    context.Context
				ledger usecase.Ledger
			)

			BeforeEach(func() {
				ctx = context.Background()
				ledger, _ = b.open()
			})

			create := func(subject uuid.UUID) domain.Job {
				j, err := ledger.Create(ctx, domain.NewJob{SubjectID: subject, BackendKey: "auto"})
				Expect(err).To(BeNil())
				return j
			}

			get := func(id uuid.UUID) domain.Job {
				j, err := ledger.Get(ctx, id)
				Expect(err).To(BeNil())
				expectOutcomeMatchesStatus(j)
				return j
			}

			It("creates queued jobs with a pending outcome", func() {
				requirement := uuid.New()
				j, err := ledger.Create(ctx, domain.NewJob{SubjectID: uuid.New(), RequirementID: &requirement, BackendKey: "gpt-4o-mini"})
				Expect(err).To(BeNil())
				Expect(j.Status).To(Equal(domain.StatusQueued))
				Expect(j.Attempts).To(Equal(0))

				stored := get(j.ID)
				Expect(stored.SubjectID).To(Equal(j.SubjectID))
				Expect(*stored.RequirementID).To(Equal(requirement))
				Expect(stored.BackendKey).To(Equal("gpt-4o-mini"))
				Expect(stored.StartedAt).To(BeNil())
			})

			It("claims oldest first and never returns a claimed job twice", func() {
				subject := uuid.New()
				var ids []uuid.UUID
				for i := 0; i < 3; i++ {
					ids = append(ids, create(subject).ID)
					time.Sleep(2 * time.Millisecond)
				}

				first, err := ledger.ClaimBatch(ctx, 2)
				Expect(err).To(BeNil())
				Expect(first).To(HaveLen(2))
				Expect(first[0].ID).To(Equal(ids[0]))
				Expect(first[1].ID).To(Equal(ids[1]))
				for _, j := range first {
					Expect(j.Status).To(Equal(domain.StatusRunning))
					Expect(j.Attempts).To(Equal(1))
					Expect(j.StartedAt).ToNot(BeNil())
				}

				second, err := ledger.ClaimBatch(ctx, 5)
				Expect(err).To(BeNil())
				Expect(second).To(HaveLen(1))
				Expect(second[0].ID).To(Equal(ids[2]))

				none, err := ledger.ClaimBatch(ctx, 5)
				Expect(err).To(BeNil())
				Expect(none).To(BeEmpty())
			})

			It("records a successful result", func() {
				j := create(uuid.New())
				_, err := ledger.ClaimBatch(ctx, 1)
				Expect(err).To(BeNil())

				Expect(ledger.MarkSuccess(ctx, j.ID, json.RawMessage(`{"skills":["Go"]}`))).To(Succeed())
				stored := get(j.ID)
				Expect(stored.Status).To(Equal(domain.StatusSuccess))
				result, _ := stored.Result()
				Expect(string(result)).To(MatchJSON(`{"skills":["Go"]}`))
			})

			It("retries a failed job back into the queue", func() {
				j := create(uuid.New())
				_, err := ledger.ClaimBatch(ctx, 1)
				Expect(err).To(BeNil())
				Expect(ledger.MarkFailed(ctx, j.ID, "max retries exceeded")).To(Succeed())

				failed := get(j.ID)
				msg, _ := failed.Error()
				Expect(msg).To(Equal("max retries exceeded"))

				Expect(ledger.Retry(ctx, j.ID)).To(Succeed())
				requeued := get(j.ID)
				Expect(requeued.Status).To(Equal(domain.StatusQueued))
				Expect(requeued.FinishedAt).To(BeNil())

				claimed, err := ledger.ClaimBatch(ctx, 1)
				Expect(err).To(BeNil())
				Expect(claimed).To(HaveLen(1))
				Expect(claimed[0].Attempts).To(Equal(2))
			})

			It("moves a single queued job to running", func() {
				j := create(uuid.New())
				Expect(ledger.MarkRunning(ctx, j.ID)).To(Succeed())
				running := get(j.ID)
				Expect(running.Status).To(Equal(domain.StatusRunning))
				Expect(running.Attempts).To(Equal(1))
			})

			It("rejects every transition outside the state machine and leaves state unchanged", func() {
				queued := create(uuid.New())
				expectKind(ledger.MarkSuccess(ctx, queued.ID, json.RawMessage(`{}`)), domain.KindInvalidTransition)
				expectKind(ledger.MarkFailed(ctx, queued.ID, "boom"), domain.KindInvalidTransition)
				expectKind(ledger.Retry(ctx, queued.ID), domain.KindInvalidTransition)
				Expect(get(queued.ID).Status).To(Equal(domain.StatusQueued))

				Expect(ledger.MarkRunning(ctx, queued.ID)).To(Succeed())
				expectKind(ledger.MarkRunning(ctx, queued.ID), domain.KindInvalidTransition)
				expectKind(ledger.Retry(ctx, queued.ID), domain.KindInvalidTransition)
				Expect(get(queued.ID).Status).To(Equal(domain.StatusRunning))

				Expect(ledger.MarkSuccess(ctx, queued.ID, json.RawMessage(`{"skills":[]}`))).To(Succeed())
				err := ledger.Retry(ctx, queued.ID)
				expectKind(err, domain.KindInvalidTransition)
				Expect(err.Error()).To(ContainSubstring("cannot move from success to queued"))
				expectKind(ledger.MarkFailed(ctx, queued.ID, "late"), domain.KindInvalidTransition)
				expectKind(ledger.MarkRunning(ctx, queued.ID), domain.KindInvalidTransition)
				Expect(get(queued.ID).Status).To(Equal(domain.StatusSuccess))
			})

			It("fails running jobs orphaned before a cutoff", func() {
				orphan := create(uuid.New())
				Expect(ledger.MarkRunning(ctx, orphan.ID)).To(Succeed())
				time.Sleep(5 * time.Millisecond)
				cutoff := time.Now()
				time.Sleep(5 * time.Millisecond)

				live := create(uuid.New())
				Expect(ledger.MarkRunning(ctx, live.ID)).To(Succeed())
				queued := create(uuid.New())

				ids, err := ledger.FailStale(ctx, cutoff, "worker restarted while the analysis was running")
				Expect(err).To(BeNil())
				Expect(ids).To(ConsistOf(orphan.ID))

				failed := get(orphan.ID)
				Expect(failed.Status).To(Equal(domain.StatusFailed))
				msg, _ := failed.Error()
				Expect(msg).To(Equal("worker restarted while the analysis was running"))
				Expect(get(live.ID).Status).To(Equal(domain.StatusRunning))
				Expect(get(queued.ID).Status).To(Equal(domain.StatusQueued))

				again, err := ledger.FailStale(ctx, cutoff, "again")
				Expect(err).To(BeNil())
				Expect(again).To(BeEmpty())

				Expect(ledger.Retry(ctx, orphan.ID)).To(Succeed())
				Expect(get(orphan.ID).Status).To(Equal(domain.StatusQueued))
			})

			It("reports unknown jobs as not found", func() {
				missing := uuid.New()
				_, err := ledger.Get(ctx, missing)
				expectKind(err, domain.KindNotFound)
				expectKind(ledger.Retry(ctx, missing), domain.KindNotFound)
				expectKind(ledger.MarkRunning(ctx, missing), domain.KindNotFound)
				expectKind(ledger.MarkFailed(ctx, missing, "x"), domain.KindNotFound)
			})

			It("does not double-process under concurrent claims", func() {
				const total = 24
				for i := 0; i < total; i++ {
					create(uuid.New())
				}

				var (
					mu   sync.Mutex
					seen = map[uuid.UUID]int{}
					wg   sync.WaitGroup
				)
				for w := 0; w < 6; w++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						for {
							jobs, err := ledger.ClaimBatch(ctx, 3)
							Expect(err).To(BeNil())
							if len(jobs) == 0 {
								return
							}
							mu.Lock()
							for _, j := range jobs {
								seen[j.ID]++
							}
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				Expect(seen).To(HaveLen(total))
				for id, n := range seen {
					Expect(n).To(Equal(1), "job %s claimed %d times", id, n)
				}
			})

			It("lists, counts and finds the latest success", func() {
				subject := uuid.New()
				a := create(subject)
				time.Sleep(2 * time.Millisecond)
				b2 := create(subject)
				time.Sleep(2 * time.Millisecond)
				other := create(uuid.New())

				_, err := ledger.LatestSuccess(ctx, subject)
				expectKind(err, domain.KindNotFound)

				Expect(ledger.MarkRunning(ctx, a.ID)).To(Succeed())
				Expect(ledger.MarkSuccess(ctx, a.ID, json.RawMessage(`{"skills":["Go"]}`))).To(Succeed())
				time.Sleep(2 * time.Millisecond)
				Expect(ledger.MarkRunning(ctx, b2.ID)).To(Succeed())
				Expect(ledger.MarkSuccess(ctx, b2.ID, json.RawMessage(`{"skills":["Rust"]}`))).To(Succeed())

				latest, err := ledger.LatestSuccess(ctx, subject)
				Expect(err).To(BeNil())
				Expect(latest.ID).To(Equal(b2.ID))

				bySubject, err := ledger.List(ctx, domain.JobFilter{SubjectID: &subject})
				Expect(err).To(BeNil())
				Expect(bySubject).To(HaveLen(2))
				Expect(bySubject[0].ID).To(Equal(b2.ID))

				queued := domain.StatusQueued
				byStatus, err := ledger.List(ctx, domain.JobFilter{Status: &queued})
				Expect(err).To(BeNil())
				Expect(byStatus).To(HaveLen(1))
				Expect(byStatus[0].ID).To(Equal(other.ID))

				limited, err := ledger.List(ctx, domain.JobFilter{Limit: 1})
				Expect(err).To(BeNil())
				Expect(limited).To(HaveLen(1))
				Expect(limited[0].ID).To(Equal(other.ID))

				counts, err := ledger.CountByStatus(ctx)
				Expect(err).To(BeNil())
				Expect(counts).To(Equal(map[domain.Status]int{
					domain.StatusQueued:  1,
					domain.StatusRunning: 0,
					domain.StatusSuccess: 2,
					domain.StatusFailed:  0,
				}))
			})
		})
	}
})
