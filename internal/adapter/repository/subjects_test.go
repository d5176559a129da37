package repository_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/usecase"
)

var _ = Describe("SubjectStore", func() {
	for _, b := range backends {
		b := b
		Context(b.name, func() {
			var (
				ctx   context.Context
				store usecase.SubjectStore
			)

			BeforeEach(func() {
				ctx = context.Background()
				_, store = b.open()
			})

			It("round-trips a subject with unknown classification keys", func() {
				owner := uuid.New()
				s := domain.Subject{
					ID:      uuid.New(),
					OwnerID: &owner,
					Text:    "Go developer, five years",
					Classification: domain.Classification{
						Skills: []domain.Skill{{Name: "Go", Provenance: domain.ProvenanceResume}},
						Fields: map[string]json.RawMessage{"title": json.RawMessage(`"Backend engineer"`)},
					},
				}
				Expect(store.SaveSubject(ctx, s)).To(Succeed())

				got, err := store.GetSubject(ctx, s.ID)
				Expect(err).To(BeNil())
				Expect(*got.OwnerID).To(Equal(owner))
				Expect(got.Text).To(Equal(s.Text))
				Expect(got.Classification.Skills).To(Equal(s.Classification.Skills))
				Expect(string(got.Classification.Fields["title"])).To(MatchJSON(`"Backend engineer"`))
			})

			It("writes snapshots only onto existing subjects", func() {
				s := domain.Subject{ID: uuid.New(), Text: "profile"}
				Expect(store.SaveSubject(ctx, s)).To(Succeed())

				score := 72.0
				assessment := domain.Assessment{
					CompetitiveAnalysis: domain.CompetitiveAnalysis{OverallScore: &score, PeerComparison: "Top 25%"},
					Strengths:           []string{"Go"},
				}
				classification := domain.Classification{Skills: []domain.Skill{{Name: "Rust"}}}
				Expect(store.SaveSnapshot(ctx, s.ID, classification, assessment)).To(Succeed())

				got, err := store.GetSubject(ctx, s.ID)
				Expect(err).To(BeNil())
				Expect(got.Classification.Skills).To(HaveLen(1))
				Expect(got.Classification.Skills[0].Name).To(Equal("Rust"))
				Expect(*got.Assessment.CompetitiveAnalysis.OverallScore).To(Equal(72.0))
				Expect(got.Assessment.CompetitiveAnalysis.PeerComparison).To(Equal("Top 25%"))

				err = store.SaveSnapshot(ctx, uuid.New(), classification, assessment)
				Expect(domain.IsKind(err, domain.KindNotFound)).To(BeTrue())
			})

			It("reports unknown subjects and requirements as not found", func() {
				_, err := store.GetSubject(ctx, uuid.New())
				Expect(domain.IsKind(err, domain.KindNotFound)).To(BeTrue())
				_, err = store.GetRequirement(ctx, uuid.New())
				Expect(domain.IsKind(err, domain.KindNotFound)).To(BeTrue())
			})

			It("finds the latest completed requirement of an owner", func() {
				owner := uuid.New()
				older := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Millisecond)
				newer := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)

				none, err := store.LatestCompletedRequirement(ctx, owner)
				Expect(err).To(BeNil())
				Expect(none).To(BeNil())

				first := domain.Requirement{ID: uuid.New(), OwnerID: owner, Title: "Backend", Skills: []string{"Go"}, CompletedAt: &older}
				second := domain.Requirement{ID: uuid.New(), OwnerID: owner, Title: "Platform", Skills: []string{"Go", "Kubernetes"}, CompletedAt: &newer}
				draft := domain.Requirement{ID: uuid.New(), OwnerID: owner, Title: "Draft"}
				foreign := domain.Requirement{ID: uuid.New(), OwnerID: uuid.New(), Title: "Other", CompletedAt: &newer}
				for _, r := range []domain.Requirement{first, second, draft, foreign} {
					Expect(store.SaveRequirement(ctx, r)).To(Succeed())
				}

				latest, err := store.LatestCompletedRequirement(ctx, owner)
				Expect(err).To(BeNil())
				Expect(latest).ToNot(BeNil())
				Expect(latest.ID).To(Equal(second.ID))
				Expect(latest.Skills).To(Equal([]string{"Go", "Kubernetes"}))

				got, err := store.GetRequirement(ctx, draft.ID)
				Expect(err).To(BeNil())
				Expect(got.Title).To(Equal("Draft"))
				Expect(got.CompletedAt).To(BeNil())
			})
		})
	}
})
