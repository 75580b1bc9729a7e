package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/incusim/internal/control"
	"github.com/san-kum/incusim/internal/room"
	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
)

type roomFunc func(time.Duration) float64

func (f roomFunc) At(t time.Duration) float64 { return f(t) }

// recorder logs the order in which it is called back.
type recorder struct {
	mu    sync.Mutex
	name  string
	calls *[]string
	ticks []int
}

func (r *recorder) OnTick(rep TickReport) { r.record(rep) }
func (r *recorder) Observe(rep TickReport) { r.record(rep) }
func (r *recorder) Name() string           { return r.name }
func (r *recorder) Value() float64         { return float64(len(r.ticks)) }
func (r *recorder) Reset()                 { r.ticks = nil }

func (r *recorder) record(rep TickReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.calls = append(*r.calls, r.name)
	r.ticks = append(r.ticks, rep.Tick)
}

// gate blocks the first caller of Output until released.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) Output() float64 {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return 0
}

// blockingObserver holds the first tick inside OnTick until released.
type blockingObserver struct{ *gate }

func (b blockingObserver) OnTick(TickReport) { b.Output() }

func newPair(chamberTemp float64) (*thermal.Infant, *thermal.Chamber) {
	infant, err := thermal.NewInfant(3, 0.5, thermal.BodyTemperature)
	Expect(err).NotTo(HaveOccurred())
	chamber, err := thermal.NewChamber(1, 0.5, 0.5, chamberTemp, thermal.RoomTemperature)
	Expect(err).NotTo(HaveOccurred())
	Expect(chamber.AddInfant(infant)).To(Succeed())
	return infant, chamber
}

var _ = Describe("Config", func() {
	It("should split a tick into steps no longer than the max substep", func() {
		cfg := Config{TimeStep: 60, MaxSubstep: 1}
		n, h := cfg.Substeps()
		Expect(n).To(Equal(60))
		Expect(h).To(Equal(1.0))

		cfg = Config{TimeStep: 2.5, MaxSubstep: 1}
		n, h = cfg.Substeps()
		Expect(n).To(Equal(3))
		Expect(h).To(BeNumerically("~", 2.5/3, 1e-12))
	})

	It("should take one raw step when splitting is disabled", func() {
		n, h := Config{TimeStep: 60}.Substeps()
		Expect(n).To(Equal(1))
		Expect(h).To(Equal(60.0))
	})

	DescribeTable("should reject invalid values",
		func(cfg Config, field string) {
			err := cfg.Validate()
			var cerr *thermal.ConfigError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Field).To(Equal(field))
			Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())
		},
		Entry("zero time step", Config{TimeStep: 0}, "time step"),
		Entry("NaN time step", Config{TimeStep: math.NaN()}, "time step"),
		Entry("negative sleep", Config{TimeStep: 1, SleepTime: -time.Second}, "sleep time"),
		Entry("negative substep", Config{TimeStep: 1, MaxSubstep: -1}, "max substep"),
		Entry("negative tick limit", Config{TimeStep: 1, MaxTicks: -1}, "max ticks"),
		Entry("sub-step count overflow", Config{TimeStep: 60, MaxSubstep: 1e-300}, "max substep"),
		Entry("too many sub-steps", Config{TimeStep: 60, MaxSubstep: 1e-5}, "max substep"),
	)

	It("should accept the defaults", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})
})

var _ = Describe("Simulator", func() {
	var (
		infant  *thermal.Infant
		chamber *thermal.Chamber
		cfg     Config
		ctx     context.Context
	)

	BeforeEach(func() {
		infant, chamber = newPair(300)
		cfg = DefaultConfig()
		cfg.SleepTime = 0
		ctx = context.Background()
	})

	Describe("construction", func() {
		It("should require both bodies", func() {
			_, err := New(nil, chamber, nil, cfg)
			Expect(err).To(MatchError(ErrMissingBody))
			_, err = New(infant, nil, nil, cfg)
			Expect(err).To(MatchError(ErrMissingBody))
		})

		It("should refuse a chamber holding another infant", func() {
			other, err := thermal.NewInfant(3, 0.5, thermal.BodyTemperature)
			Expect(err).NotTo(HaveOccurred())
			_, err = New(other, chamber, nil, cfg)
			Expect(err).To(MatchError(thermal.ErrChamberOccupied))
		})

		It("should place the infant in an empty chamber", func() {
			loose, err := thermal.NewInfant(3, 0.5, thermal.BodyTemperature)
			Expect(err).NotTo(HaveOccurred())
			empty, err := thermal.NewChamber(1, 0.5, 0.5, 300, thermal.RoomTemperature)
			Expect(err).NotTo(HaveOccurred())

			s, err := New(loose, empty, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(empty.Infant()).To(BeIdenticalTo(loose))
			Expect(s.Snapshot().InfantInside).To(BeTrue())

			for i := 0; i < 10; i++ {
				_, err := s.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(loose.Temperature()).To(BeNumerically("<", thermal.BodyTemperature))
			Expect(loose.Temperature()).To(BeNumerically("~", 309.04, 0.01))
		})

		It("should start idle with no simulated time", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State()).To(Equal(task.Idle))
			Expect(s.Ticks()).To(BeZero())
			Expect(s.SimTime()).To(BeZero())
			Expect(s.Stop()).To(Succeed())
		})
	})

	Describe("ticking", func() {
		It("should cool the infant monotonically while the chamber trends to room temperature", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			prevInfant, prevChamber := infant.Temperature(), chamber.Temperature()
			for i := 1; i <= 10; i++ {
				r, err := s.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Tick).To(Equal(i))
				Expect(r.Substeps).To(Equal(60))
				Expect(r.Infant.Temperature).To(BeNumerically("<", prevInfant))
				Expect(r.Chamber.Temperature).To(BeNumerically("<", prevChamber))
				Expect(r.Chamber.Temperature).To(BeNumerically(">", thermal.RoomTemperature))
				prevInfant, prevChamber = r.Infant.Temperature, r.Chamber.Temperature
			}

			Expect(s.Ticks()).To(Equal(10))
			Expect(s.SimTime()).To(Equal(10 * time.Minute))
			Expect(infant.Temperature()).To(BeNumerically("~", 309.04, 0.01))
			Expect(chamber.Temperature()).To(BeNumerically("~", 294.30, 0.01))
		})

		DescribeTable("should conserve energy across the infant-chamber pair",
			func(dt float64) {
				c := Config{TimeStep: dt}
				s, err := New(infant, chamber, room.Constant(chamber.Temperature()), c)
				Expect(err).NotTo(HaveOccurred())

				infant0, chamber0 := infant.Energy(), chamber.Energy()
				r, err := s.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())

				Expect(r.RoomTransfer).To(BeZero())
				Expect(r.PairImbalance()).To(BeZero())
				net := (infant.Energy() - infant0) + (chamber.Energy() - chamber0)
				Expect(net).To(BeNumerically("~", 0, 1e-6))
			},
			Entry("0.1 s", 0.1),
			Entry("1 s", 1.0),
			Entry("60 s", 60.0),
			Entry("600 s", 600.0),
		)

		It("should account for every joule in the report", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 3; i++ {
				r, err := s.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Residual()).To(BeNumerically("~", 0, 1e-6))
				Expect(r.InfantEnergyChange).To(BeNumerically("~", r.InfantTransfer, 1e-6))
			}
		})

		It("should leave an infant outside the chamber untouched", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.RemoveInfant()).To(BeTrue())

			before := infant.Energy()
			r, err := s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.InfantInside).To(BeFalse())
			Expect(infant.Energy()).To(Equal(before))
			Expect(r.CreditedToChamber).To(BeZero())
		})

		It("should sample the room source at the start of each tick", func() {
			sched, err := room.NewSchedule(293, room.Step{Offset: time.Minute, Temperature: 280})
			Expect(err).NotTo(HaveOccurred())
			s, err := New(infant, chamber, sched, cfg)
			Expect(err).NotTo(HaveOccurred())

			r, err := s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.RoomTemperature).To(Equal(293.0))

			r, err = s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.RoomTemperature).To(Equal(280.0))
			Expect(chamber.RoomTemperature()).To(Equal(280.0))
		})

		It("should report heater energy per sub-step", func() {
			thermometer, err := control.NewThermometer(chamber)
			Expect(err).NotTo(HaveOccurred())
			heater, err := control.NewThermostat(100, 310, thermometer)
			Expect(err).NotTo(HaveOccurred())
			chamber.SetHeater(heater)

			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			r, err := s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ChamberHeaterActive).To(Equal(60))
			Expect(r.ChamberHeaterEnergy).To(BeNumerically("~", 6000, 1e-9))
			Expect(r.InfantHeaterActive).To(BeZero())
		})

		It("should use the stale polled heater output for the whole tick", func() {
			heater, err := control.NewPolledHeater(50, thermal.BodyTemperature+5, infant, time.Hour, nil)
			Expect(err).NotTo(HaveOccurred())
			infant.SetHeater(heater)

			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			r, err := s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.InfantHeaterActive).To(BeZero())

			Expect(heater.Poll()).To(Equal(50.0))
			r, err = s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.InfantHeaterActive).To(Equal(60))
			Expect(r.InfantHeaterEnergy).To(BeNumerically("~", 3000, 1e-9))
			Expect(heater.Stop()).To(Succeed())
		})

		It("should stop on a non-finite temperature", func() {
			s, err := New(infant, chamber, roomFunc(func(time.Duration) float64 { return math.NaN() }), cfg)
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Tick(ctx)
			Expect(errors.Is(err, ErrInvalidState)).To(BeTrue())
			var serr *SimulationError
			Expect(errors.As(err, &serr)).To(BeTrue())
			Expect(serr.Tick).To(Equal(1))
			Expect(serr.SimTime).To(Equal(time.Minute))
		})

		It("should refuse to tick with a cancelled context", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err = s.Tick(cctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(s.Ticks()).To(BeZero())
		})

		It("should call observers before metrics in registration order", func() {
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			var calls []string
			s.AddObserver(&recorder{name: "obs1", calls: &calls})
			s.AddMetric(&recorder{name: "met1", calls: &calls})
			s.AddObserver(&recorder{name: "obs2", calls: &calls})

			_, err = s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal([]string{"obs1", "obs2", "met1"}))
			Expect(s.Metrics()).To(HaveKeyWithValue("met1", 1.0))
		})
	})

	Describe("commands and queries", func() {
		var s *Simulator

		BeforeEach(func() {
			var err error
			s, err = New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should open and close the chamber", func() {
			s.OpenChamber()
			Expect(s.ChamberTemperature()).To(BeNumerically("~", 296.5, 1e-9))
			Expect(s.Snapshot().Open).To(BeTrue())
			s.CloseChamber()
			Expect(s.Snapshot().Open).To(BeFalse())
		})

		It("should remove and re-add the infant", func() {
			Expect(s.RemoveInfant()).To(BeTrue())
			Expect(s.RemoveInfant()).To(BeFalse())
			Expect(s.Snapshot().InfantInside).To(BeFalse())
			Expect(s.AddInfant()).To(Succeed())
			Expect(s.Snapshot().InfantInside).To(BeTrue())
		})

		It("should snapshot both bodies", func() {
			_, err := s.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			st := s.Snapshot()
			Expect(st.Ticks).To(Equal(1))
			Expect(st.SimTime).To(Equal(time.Minute))
			Expect(st.Infant.Temperature).To(Equal(s.InfantTemperature()))
			Expect(st.Chamber.Temperature).To(Equal(s.ChamberTemperature()))
			Expect(st.RoomTemperature).To(Equal(thermal.RoomTemperature))
		})

		It("should hold commands until the running tick finishes", func() {
			g := newGate()
			infant.SetHeater(g)

			ticked := make(chan error, 1)
			go func() {
				_, err := s.Tick(ctx)
				ticked <- err
			}()
			Eventually(g.entered).Should(BeClosed())

			opened := make(chan struct{})
			go func() {
				s.OpenChamber()
				close(opened)
			}()
			Consistently(opened, 50*time.Millisecond).ShouldNot(BeClosed())
			Expect(chamber.IsOpen()).To(BeFalse())

			close(g.release)
			Eventually(ticked).Should(Receive(BeNil()))
			Eventually(opened).Should(BeClosed())
			Expect(chamber.IsOpen()).To(BeTrue())
		})

		It("should answer queries during a tick", func() {
			g := newGate()
			infant.SetHeater(g)

			ticked := make(chan error, 1)
			go func() {
				_, err := s.Tick(ctx)
				ticked <- err
			}()
			Eventually(g.entered).Should(BeClosed())

			Expect(s.InfantTemperature()).To(Equal(thermal.BodyTemperature))
			Expect(s.Snapshot().Ticks).To(BeZero())

			close(g.release)
			Eventually(ticked).Should(Receive(BeNil()))
		})

		It("should reject a concurrent tick", func() {
			g := newGate()
			s.AddObserver(blockingObserver{g})

			ticked := make(chan error, 1)
			go func() {
				_, err := s.Tick(ctx)
				ticked <- err
			}()
			Eventually(g.entered).Should(BeClosed())

			_, err := s.Tick(ctx)
			Expect(err).To(MatchError(ErrConcurrentTick))

			close(g.release)
			Eventually(ticked).Should(Receive(BeNil()))
			Expect(s.Ticks()).To(Equal(1))
		})
	})

	Describe("lifecycle", func() {
		It("should stop by itself at the tick limit", func() {
			cfg.MaxTicks = 5
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Run(ctx)).To(Succeed())
			Expect(s.Ticks()).To(Equal(5))
			Expect(s.State()).To(Equal(task.Stopped))
		})

		It("should keep ticking until stopped", func() {
			cfg.SleepTime = time.Millisecond
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Start(ctx)).To(Succeed())
			Expect(errors.Is(s.Start(ctx), task.ErrAlreadyRunning)).To(BeTrue())
			Eventually(s.Ticks).Should(BeNumerically(">=", 3))

			Expect(s.Stop()).To(Succeed())
			n := s.Ticks()
			Consistently(s.Ticks, 20*time.Millisecond).Should(Equal(n))
			Expect(errors.Is(s.Start(ctx), task.ErrStopped)).To(BeTrue())
		})

		It("should stop when the context is cancelled", func() {
			cfg.SleepTime = time.Hour
			s, err := New(infant, chamber, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			cctx, cancel := context.WithCancel(ctx)
			Expect(s.Start(cctx)).To(Succeed())
			Eventually(s.Ticks).Should(Equal(1))
			cancel()
			Eventually(s.Done()).Should(BeClosed())
			Expect(s.Err()).To(Succeed())
		})

		It("should end the loop with the simulation error", func() {
			s, err := New(infant, chamber, roomFunc(func(time.Duration) float64 { return math.Inf(1) }), cfg)
			Expect(err).NotTo(HaveOccurred())

			err = s.Run(ctx)
			Expect(errors.Is(err, ErrInvalidState)).To(BeTrue())
			Expect(s.Ticks()).To(Equal(1))
		})
	})
})
