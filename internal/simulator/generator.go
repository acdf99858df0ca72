package simulator

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/proctor/internal/domain/model"
)

// Profile is a behavioral archetype for a simulated student.
type Profile string

// Known profiles.
const (
	ProfileCalm       Profile = "calm"
	ProfileDistracted Profile = "distracted"
	ProfileCheating   Profile = "cheating"
)

// AllProfiles returns every known profile, least risky first.
func AllProfiles() []Profile {
	return []Profile{ProfileCalm, ProfileDistracted, ProfileCheating}
}

// ParseProfiles parses a comma separated profile list.
func ParseProfiles(raw string) ([]Profile, error) {
	var out []Profile
	for _, part := range strings.Split(raw, ",") {
		p := Profile(strings.ToLower(strings.TrimSpace(part)))
		if p == "" {
			continue
		}
		if _, ok := profileWeights[p]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, p)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrUnknownProfile
	}
	return out, nil
}

type weighted struct {
	typ    model.EventType
	weight int
}

// profileWeights is the relative frequency of each event type per profile.
var profileWeights = map[Profile][]weighted{
	ProfileCalm: {
		{model.EventMouseMove, 70}, {model.EventFocus, 20}, {model.EventBlur, 8}, {model.EventTabSwitch, 2},
	},
	ProfileDistracted: {
		{model.EventMouseMove, 40}, {model.EventFocus, 25}, {model.EventBlur, 25}, {model.EventTabSwitch, 10},
	},
	ProfileCheating: {
		{model.EventMouseMove, 10}, {model.EventFocus, 20}, {model.EventBlur, 30}, {model.EventTabSwitch, 40},
	},
}

// Generator produces deterministic event streams for a seed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Envelopes returns n envelopes for sessionID following profile p. Event
// timestamps start at startMillis and strictly increase.
func (g *Generator) Envelopes(sessionID int64, p Profile, n int, startMillis int64) []model.Envelope {
	out := make([]model.Envelope, n)
	ts := startMillis
	for i := range out {
		ts += int64(eventSpacingMillis/2 + g.rng.IntN(eventSpacingMillis))
		out[i] = model.Envelope{
			SessionID: sessionID,
			EventID:   uuid.NewString(),
			Event:     g.event(p, ts),
		}
	}
	return out
}

func (g *Generator) event(p Profile, ts int64) model.BehavioralEvent {
	e := model.BehavioralEvent{Type: g.pick(profileWeights[p]), Timestamp: ts}
	switch e.Type {
	case model.EventMouseMove:
		e.Data = map[string]any{"x": g.rng.IntN(1920), "y": g.rng.IntN(1080)}
	case model.EventTabSwitch:
		e.Data = map[string]any{"hidden": true}
	}
	return e
}

func (g *Generator) pick(ws []weighted) model.EventType {
	total := 0
	for _, w := range ws {
		total += w.weight
	}
	n := g.rng.IntN(total)
	for _, w := range ws {
		if n < w.weight {
			return w.typ
		}
		n -= w.weight
	}
	return ws[len(ws)-1].typ
}
