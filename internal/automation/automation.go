package automation

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/san-kum/incusim/internal/sim"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Action is an operator command a scenario can issue.
type Action string

const (
	OpenChamber  Action = "open_chamber"
	CloseChamber Action = "close_chamber"
	AddInfant    Action = "add_infant"
	RemoveInfant Action = "remove_infant"
)

// Scenario defines a scripted sequence of operator commands
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Events      []Event `yaml:"events"`
}

// Event fires at the first tick boundary at or after At simulated time.
type Event struct {
	At     time.Duration `yaml:"at"`
	Action Action        `yaml:"action"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (s *Scenario) Validate() error {
	for i, e := range s.Events {
		if e.At < 0 {
			return fmt.Errorf("event %d: negative time %v", i+1, e.At)
		}
		switch e.Action {
		case OpenChamber, CloseChamber, AddInfant, RemoveInfant:
		default:
			return fmt.Errorf("event %d: unknown action %q", i+1, e.Action)
		}
	}
	return nil
}

// Commander is the command surface of a running simulation.
type Commander interface {
	OpenChamber()
	CloseChamber()
	AddInfant() error
	RemoveInfant() bool
}

// Player replays a scenario against a simulation. It is a sim.Observer, so
// each event is issued between ticks.
type Player struct {
	cmd Commander
	log *zap.Logger

	mu     sync.Mutex
	events []Event
	next   int
}

func NewPlayer(s *Scenario, cmd Commander, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	events := append([]Event(nil), s.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })
	return &Player{cmd: cmd, log: log, events: events}
}

func (p *Player) OnTick(r sim.TickReport) { p.Advance(r.SimTime) }

// Advance issues every pending event due at or before simTime and returns how
// many were issued. A command that fails is logged and skipped.
func (p *Player) Advance(simTime time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	fired := 0
	for p.next < len(p.events) && p.events[p.next].At <= simTime {
		e := p.events[p.next]
		p.next++
		fired++
		if err := p.apply(e); err != nil {
			p.log.Warn("scenario event failed", zap.String("action", string(e.Action)), zap.Duration("at", e.At), zap.Error(err))
			continue
		}
		p.log.Info("scenario event", zap.String("action", string(e.Action)), zap.Duration("at", e.At), zap.Duration("sim_time", simTime))
	}
	return fired
}

func (p *Player) apply(e Event) error {
	switch e.Action {
	case OpenChamber:
		p.cmd.OpenChamber()
	case CloseChamber:
		p.cmd.CloseChamber()
	case AddInfant:
		return p.cmd.AddInfant()
	case RemoveInfant:
		if !p.cmd.RemoveInfant() {
			return fmt.Errorf("infant was not in the chamber")
		}
	}
	return nil
}

// Pending is the number of events not yet issued.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events) - p.next
}
