package sim

import (
	"math/rand"
	"time"

	"sponsorchain.org/internal/stream"
)

type Participant struct {
	Address string
	Label   string
}

type Scenario struct {
	Name     string
	Athletes []Participant
	Sponsors []Participant
	Details  []string
}

func SeasonKickoffScenario() Scenario {
	return Scenario{
		Name: "SeasonKickoff",
		Athletes: []Participant{
			{Address: "0xdemo-athlete-001", Label: "Track sprinter, national team"},
			{Address: "0xdemo-athlete-002", Label: "Freestyle swimmer"},
			{Address: "0xdemo-athlete-003", Label: "Esports mid-laner"},
		},
		Sponsors: []Participant{
			{Address: "0xdemo-sponsor-001", Label: "Apparel brand"},
			{Address: "0xdemo-sponsor-002", Label: "Energy drink label"},
		},
		Details: []string{
			"Podium finish bonus released",
			"Social campaign deliverable accepted",
			"Season opener appearance confirmed",
			"Quarterly media day completed",
		},
	}
}

// Generator produces plausible deal-feed events for demo dashboards. It
// fabricates feed items only; nothing it emits touches the ledger.
type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
	contract uint64
}

func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: SeasonKickoffScenario(), rnd: rand.New(rand.NewSource(seed))}
}

var demoTypes = []string{
	stream.TypeContractCreated,
	stream.TypeContractActivated,
	stream.TypeMilestoneSubmit,
	stream.TypeMilestonePaid,
	stream.TypeContractCompleted,
}

// NextEvent fabricates the next feed item. Contract ids count upward so the
// feed looks like a growing book of deals.
func (g *Generator) NextEvent() stream.DealEvent {
	athlete := g.scenario.Athletes[g.rnd.Intn(len(g.scenario.Athletes))]
	sponsor := g.scenario.Sponsors[g.rnd.Intn(len(g.scenario.Sponsors))]
	typ := demoTypes[g.rnd.Intn(len(demoTypes))]

	evt := stream.DealEvent{
		Type:       typ,
		ContractID: g.contract,
		Actor:      sponsor.Address,
		Subject:    athlete.Address,
		Asset:      "NATIVE",
		Detail:     g.scenario.Details[g.rnd.Intn(len(g.scenario.Details))],
	}
	if typ == stream.TypeMilestonePaid {
		evt.Amount = int64(g.rnd.Intn(90_000)+10_000) * 100
	}
	if typ == stream.TypeContractCreated {
		g.contract++
	}
	return evt
}
