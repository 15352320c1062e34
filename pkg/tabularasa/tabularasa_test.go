package tabularasa_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/tabularasa"
)

func TestTabularasa(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tabularasa Suite")
}

var _ = Describe("CheckForShift", func() {
	It("declares a shift when there is no active topic", func() {
		result := tabularasa.CheckForShift("tell me about the weather", nil)
		Expect(result.IsShift).To(BeTrue())
		Expect(result.Reason).To(Equal("no_active_topic"))
		Expect(result.Confidence).To(Equal(1.0))
	})

	It("detects an explicit shift pattern and extracts the new topic", func() {
		result := tabularasa.CheckForShift("let's talk about vacation planning instead", []string{"invoice", "billing"})
		Expect(result.IsShift).To(BeTrue())
		Expect(result.Reason).To(Equal("explicit_shift_pattern"))
		Expect(result.NewTopicLabel).To(Equal("vacation planning"))
	})

	It("treats a continuation phrase as not a shift", func() {
		result := tabularasa.CheckForShift("so what about the deadline next week", []string{"deadline", "week"})
		Expect(result.IsShift).To(BeFalse())
		Expect(result.Reason).To(Equal("continuation_pattern"))
	})

	It("falls back to Jaccard similarity when no pattern matches", func() {
		result := tabularasa.CheckForShift("completely unrelated query about database indexing", []string{"invoice", "billing", "payment"})
		Expect(result.Reason).To(BeElementOf("low_keyword_overlap", "keyword_overlap"))
	})

	It("stays on-topic for queries that overlap heavily with active keywords", func() {
		result := tabularasa.CheckForShift("invoice billing payment status", []string{"invoice", "billing", "payment"})
		Expect(result.IsShift).To(BeFalse())
	})
})

var _ = Describe("CheckForShiftWithMetadata", func() {
	It("falls back to the heuristic when meta is nil", func() {
		result := tabularasa.CheckForShiftWithMetadata("let's talk about cooking instead", []string{"invoice"}, nil)
		Expect(result.Reason).To(Equal("explicit_shift_pattern"))
	})

	It("trusts the supplied metadata when present", func() {
		meta := &tabularasa.Metadata{IsTopicShift: true, NewTopicLabel: "cooking", Confidence: 0.9}
		result := tabularasa.CheckForShiftWithMetadata("anything", []string{"invoice"}, meta)
		Expect(result.IsShift).To(BeTrue())
		Expect(result.Reason).To(Equal("llm_nano_metadata"))
		Expect(result.NewTopicLabel).To(Equal("cooking"))
		Expect(result.Confidence).To(Equal(0.9))
	})
})
