package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/eventstream"
	"github.com/bridgeware/hmlr/pkg/model"
)

var _ = Describe("Event", func() {
	It("marshals TurnPersistedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.TurnPersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnPersisted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				Project:   "my-project",
				AgentName: "hmlr",
				Provider:  "anthropic",
			},
			RequestMeta: eventstream.TurnRequestMeta{
				Path:        "/v1/messages",
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				DurationMs:  2000,
				Streaming:   false,
				HTTPStatus:  200,
			},
			Lineage: eventstream.TurnLineageMeta{
				BlockID:   "block_1",
				MemoryIDs: []string{"memory_1"},
				ChunkIDs:  []string{"chunk_1", "chunk_2"},
				FactIDs:   []string{"fact_1"},
			},
			Turn: model.Turn{
				TurnID:      "turn_1",
				BlockID:     "block_1",
				UserMessage: "hello",
				AIResponse:  "hi",
				Timestamp:   now,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKey("lineage"))
		Expect(got).To(HaveKey("turn"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnPersisted).To(Equal("hmlr.turn.persisted"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
