package control

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/incusim/internal/thermal"
)

// settable is a sensor whose reading can be changed while pollers read it.
type settable struct {
	bits atomic.Uint64
	hits atomic.Int64
}

func newSettable(v float64) *settable {
	s := &settable{}
	s.Set(v)
	return s
}

func (s *settable) Set(v float64) { s.bits.Store(math.Float64bits(v)) }

func (s *settable) Temperature() float64 {
	s.hits.Add(1)
	return math.Float64frombits(s.bits.Load())
}

var _ = Describe("Thermostat", func() {
	var (
		mockCtrl *gomock.Controller
		sensor   *MockTemperatureSensor
		heater   *Thermostat
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sensor = NewMockTemperatureSensor(mockCtrl)

		var err error
		heater, err = NewThermostat(100, 310, sensor)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should output full power below the setpoint", func() {
		sensor.EXPECT().Temperature().Return(305.0)
		Expect(heater.Output()).To(Equal(100.0))
	})

	It("should output nothing above the setpoint", func() {
		sensor.EXPECT().Temperature().Return(315.0)
		Expect(heater.Output()).To(Equal(0.0))
	})

	It("should output nothing exactly at the setpoint", func() {
		sensor.EXPECT().Temperature().Return(310.0)
		Expect(heater.Output()).To(Equal(0.0))
	})

	It("should read the sensor on every call", func() {
		gomock.InOrder(
			sensor.EXPECT().Temperature().Return(305.0),
			sensor.EXPECT().Temperature().Return(311.0),
			sensor.EXPECT().Temperature().Return(309.9),
		)
		Expect(heater.Output()).To(Equal(100.0))
		Expect(heater.Output()).To(Equal(0.0))
		Expect(heater.Output()).To(Equal(100.0))
	})

	It("should switch to a new sensor", func() {
		other := NewMockTemperatureSensor(mockCtrl)
		other.EXPECT().Temperature().Return(200.0)
		Expect(heater.SetSensor(other)).To(Succeed())
		Expect(heater.Output()).To(Equal(100.0))
	})

	It("should reject a missing sensor", func() {
		_, err := NewThermostat(100, 310, nil)
		Expect(errors.Is(err, thermal.ErrNoSensor)).To(BeTrue())
		Expect(errors.Is(heater.SetSensor(nil), thermal.ErrNoSensor)).To(BeTrue())
	})

	It("should reject negative power", func() {
		_, err := NewThermostat(-1, 310, sensor)
		Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())
	})

	It("should regulate a body heater to body temperature", func() {
		bh, err := NewBodyHeater(100, sensor)
		Expect(err).NotTo(HaveOccurred())
		Expect(bh.Setpoint()).To(Equal(thermal.BodyTemperature))
		Expect(bh.Setpoint()).To(Equal(310.0))
	})
})

var _ = Describe("PolledHeater", func() {
	var (
		sensor *settable
		heater *PolledHeater
	)

	BeforeEach(func() {
		sensor = newSettable(305)
		var err error
		heater, err = NewPolledHeater(100, 310, sensor, 2*time.Millisecond, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should output nothing before the first poll", func() {
		Expect(heater.Output()).To(Equal(0.0))
		Expect(sensor.hits.Load()).To(BeZero())
	})

	It("should serve the cached value until the next poll", func() {
		Expect(heater.Poll()).To(Equal(100.0))

		sensor.Set(315)
		Expect(heater.Output()).To(Equal(100.0))
		Expect(heater.Output()).To(Equal(100.0))

		Expect(heater.Poll()).To(Equal(0.0))
		Expect(heater.Output()).To(Equal(0.0))
	})

	It("should not read the sensor when output is requested", func() {
		heater.Poll()
		hits := sensor.hits.Load()
		for i := 0; i < 10; i++ {
			heater.Output()
		}
		Expect(sensor.hits.Load()).To(Equal(hits))
	})

	It("should follow the sensor while running", func() {
		Expect(heater.Start(context.Background())).To(Succeed())
		DeferCleanup(heater.Stop)

		Eventually(heater.Output).Should(Equal(100.0))
		sensor.Set(320)
		Eventually(heater.Output).Should(Equal(0.0))
		sensor.Set(300)
		Eventually(heater.Output).Should(Equal(100.0))
	})

	It("should keep its last value after stopping", func() {
		Expect(heater.Start(context.Background())).To(Succeed())
		Eventually(heater.Output).Should(Equal(100.0))
		Expect(heater.Stop()).To(Succeed())

		sensor.Set(320)
		Consistently(heater.Output, 10*time.Millisecond).Should(Equal(100.0))
	})

	It("should reject a bad configuration", func() {
		_, err := NewPolledHeater(100, 310, nil, time.Millisecond, nil)
		Expect(errors.Is(err, thermal.ErrNoSensor)).To(BeTrue())

		_, err = NewPolledHeater(100, 310, sensor, 0, nil)
		Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())

		_, err = NewPolledHeater(-5, 310, sensor, time.Millisecond, nil)
		Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())
	})
})

var _ = Describe("Thermometer", func() {
	var (
		mockCtrl *gomock.Controller
		source   *MockTemperatureSensor
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		source = NewMockTemperatureSensor(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should delegate every read to its source", func() {
		source.EXPECT().Temperature().Return(301.5).Times(2)
		th, err := NewThermometer(source)
		Expect(err).NotTo(HaveOccurred())
		Expect(th.Temperature()).To(Equal(301.5))
		Expect(th.Temperature()).To(Equal(301.5))
	})

	It("should read a thermal body directly", func() {
		body, err := thermal.NewInfant(3, 0.5, 309)
		Expect(err).NotTo(HaveOccurred())
		th, err := NewThermometer(body)
		Expect(err).NotTo(HaveOccurred())

		Expect(th.Temperature()).To(Equal(309.0))
		body.AddEnergy(body.HeatCapacity())
		Expect(th.Temperature()).To(BeNumerically("~", 310.0, 1e-9))
	})

	It("should reject a missing source", func() {
		_, err := NewThermometer(nil)
		Expect(errors.Is(err, thermal.ErrNoSensor)).To(BeTrue())

		source.EXPECT().Temperature().Return(300.0).AnyTimes()
		th, _ := NewThermometer(source)
		Expect(errors.Is(th.SetSource(nil), thermal.ErrNoSensor)).To(BeTrue())
	})
})

var _ = Describe("PolledThermometer", func() {
	var (
		mockCtrl *gomock.Controller
		source   *MockTemperatureSensor
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		source = NewMockTemperatureSensor(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should read the source once at construction", func() {
		source.EXPECT().Temperature().Return(302.0).Times(1)
		th, err := NewPolledThermometer(source, time.Hour, nil)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 5; i++ {
			Expect(th.Temperature()).To(Equal(302.0))
		}
	})

	It("should change only on refresh", func() {
		gomock.InOrder(
			source.EXPECT().Temperature().Return(302.0),
			source.EXPECT().Temperature().Return(299.0),
		)
		th, _ := NewPolledThermometer(source, time.Hour, nil)
		Expect(th.Temperature()).To(Equal(302.0))
		Expect(th.Refresh()).To(Equal(299.0))
		Expect(th.Temperature()).To(Equal(299.0))
	})

	It("should refresh on its period while running", func() {
		s := newSettable(300)
		th, err := NewPolledThermometer(s, 2*time.Millisecond, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(th.Start(context.Background())).To(Succeed())
		DeferCleanup(th.Stop)

		s.Set(290)
		Eventually(th.Temperature).Should(Equal(290.0))
	})

	It("should feed a thermostat with stale readings", func() {
		s := newSettable(305)
		th, _ := NewPolledThermometer(s, time.Hour, nil)
		heater, _ := NewThermostat(100, 310, th)

		s.Set(315)
		Expect(heater.Output()).To(Equal(100.0))

		th.Refresh()
		Expect(heater.Output()).To(Equal(0.0))
	})

	It("should reject a bad configuration", func() {
		_, err := NewPolledThermometer(nil, time.Second, nil)
		Expect(errors.Is(err, thermal.ErrNoSensor)).To(BeTrue())

		_, err = NewPolledThermometer(newSettable(300), -time.Second, nil)
		Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())
	})
})

var _ = Describe("PIDHeater", func() {
	var sensor *settable

	BeforeEach(func() {
		sensor = newSettable(300)
	})

	It("should stay within its rated power", func() {
		pid, err := NewPIDHeater(50, 1, 5, 310, 100, 1, sensor)
		Expect(err).NotTo(HaveOccurred())

		for _, reading := range []float64{300, 305, 309, 311, 330, 250} {
			sensor.Set(reading)
			out := pid.Output()
			Expect(out).To(BeNumerically(">=", 0))
			Expect(out).To(BeNumerically("<=", 100))
		}
	})

	It("should heat when cold and stop when hot", func() {
		pid, _ := NewPIDHeater(10, 0, 0, 310, 100, 1, sensor)
		sensor.Set(309)
		Expect(pid.Output()).To(BeNumerically("~", 10.0, 1e-9))
		sensor.Set(311)
		Expect(pid.Output()).To(Equal(0.0))
	})

	It("should start over after reset", func() {
		pid, _ := NewPIDHeater(1, 1, 0, 310, 1000, 1, sensor)
		first := pid.Output()
		pid.Output()
		pid.Output()
		pid.Reset()
		Expect(pid.Output()).To(Equal(first))
	})

	It("should expose its tunable parameters", func() {
		pid, _ := NewPIDHeater(1, 2, 3, 310, 100, 1, sensor)
		Expect(pid.SetParam("Kp", 4)).To(Succeed())
		Expect(pid.GetParams()).To(HaveKeyWithValue("Kp", 4.0))
		Expect(pid.SetParam("Kx", 1)).To(HaveOccurred())
	})

	It("should reject a bad configuration", func() {
		_, err := NewPIDHeater(1, 0, 0, 310, 100, 0, sensor)
		Expect(errors.Is(err, thermal.ErrInvalidConfig)).To(BeTrue())
		_, err = NewPIDHeater(1, 0, 0, 310, 100, 1, nil)
		Expect(errors.Is(err, thermal.ErrNoSensor)).To(BeTrue())
	})
})

var _ = Describe("Manual and Off", func() {
	It("should clamp manual output to the rated power", func() {
		m, err := NewManual(80)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Output()).To(Equal(0.0))
		m.SetOutput(40)
		Expect(m.Output()).To(Equal(40.0))
		m.SetOutput(200)
		Expect(m.Output()).To(Equal(80.0))
		m.SetOutput(-3)
		Expect(m.Output()).To(Equal(0.0))
	})

	It("should never heat when off", func() {
		var h thermal.HeatSource = NewOff()
		Expect(h.Output()).To(Equal(0.0))
	})
})
