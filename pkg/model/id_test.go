package model_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/model"
)

func TestModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Model Suite")
}

var _ = Describe("NewID", func() {
	It("embeds the prefix, timestamp, and index", func() {
		id := model.NewID("turn", 1700000000000000000, 3)
		Expect(id).To(HavePrefix("turn_1700000000000000000_3_"))
	})

	It("produces distinct ids for distinct calls with the same arguments", func() {
		a := model.NewID("block", 1, 0)
		b := model.NewID("block", 1, 0)
		Expect(a).NotTo(Equal(b))
	})

	It("never contains hyphens from the uuid nonce", func() {
		id := model.NewID("fact", 42, 0)
		Expect(id).NotTo(ContainSubstring("-"))
	})
})
