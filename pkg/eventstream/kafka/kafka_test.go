package kafka_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/eventstream"
	"github.com/bridgeware/hmlr/pkg/eventstream/kafka"
)

func TestKafka(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Kafka Publisher Suite")
}

var _ = Describe("NewPublisher", func() {
	It("rejects an empty broker list", func() {
		_, err := kafka.NewPublisher(kafka.Config{Topic: "hmlr.turns"}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty topic", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("builds successfully given brokers and a topic", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "hmlr.turns"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).NotTo(BeNil())
		Expect(p.Close()).To(Succeed())
	})
})

var _ = Describe("Publisher.PublishTurn", func() {
	It("returns ErrNilTurnEvent for nil events without dialing a broker", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "hmlr.turns"}, nil)
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
	})
})
