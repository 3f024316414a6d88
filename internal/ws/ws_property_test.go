package ws

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agent-console/backend/internal/event"
	"github.com/agent-console/backend/internal/session"
)

// For any number of subscribed clients and any batch of published
// events, every client receives every event, in publication order.
func TestFanOutDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every subscriber receives every published event in order", prop.ForAll(
		func(clientCount int, texts []string) bool {
			reg := session.NewRegistry(session.Config{})
			s, err := reg.Create(t.TempDir(), "")
			if err != nil {
				t.Logf("Create: %v", err)
				return false
			}
			hub := NewHub(reg)

			clients := make([]*Client, clientCount)
			for i := range clients {
				clients[i] = NewClient(nil)
				if err := hub.Subscribe(clients[i], s.ID()); err != nil {
					t.Logf("Subscribe: %v", err)
					return false
				}
			}

			for _, text := range texts {
				hub.Publish(event.Event{Type: event.TypePlain, SessionID: s.ID(), Text: text})
			}

			for _, c := range clients {
				msgs := drain(c)
				if len(msgs) != len(texts) {
					t.Logf("client received %d messages, want %d", len(msgs), len(texts))
					return false
				}
				for i, msg := range msgs {
					var ev event.Event
					if err := json.Unmarshal(msg, &ev); err != nil {
						t.Logf("unmarshal: %v", err)
						return false
					}
					if ev.Text != texts[i] {
						t.Logf("message %d is %q, want %q", i, ev.Text, texts[i])
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.SliceOfN(10, gen.AlphaString()).SuchThat(func(ss []string) bool {
			for _, s := range ss {
				if s == "" {
					return false
				}
			}
			return true
		}),
	))

	properties.TestingRun(t)
}
