package runoff

import (
	"context"
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/san-kum/fieldlab/internal/copula"
	"github.com/san-kum/fieldlab/internal/dynamo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBounds(t *testing.T) {
	g := NewWithT(t)
	p := DefaultPhysical()
	th1, th2 := p.Thresholds()

	g.Expect(Bounds(-1, p, 100)).To(BeEmpty())

	r := Bounds(1, p, 100)
	g.Expect(r).To(HaveLen(1))
	g.Expect(r[0].B).To(Equal(100.0))
	g.Expect(r[0].D(0)).To(BeNumerically("~", 1/p.H+p.Sdi, 1e-12))

	v0 := 0.5 * (th1 + th2)
	r = Bounds(v0, p, 100)
	g.Expect(r).To(HaveLen(2))
	g.Expect(r[0].B).To(BeNumerically("~", p.T234(v0), 1e-12))
	g.Expect(r[1].A).To(Equal(r[0].B))
	g.Expect(r[0].D(2)).To(BeNumerically("~", p.Sd()+v0+2*p.Fc*(1-p.H), 1e-12))

	r = Bounds(th2+1, p, 100)
	g.Expect(r).To(HaveLen(2))
	g.Expect(r[0].B).To(Equal(p.Ts))
	g.Expect(r[1].D(50)).To(BeNumerically("~", p.Sd()+th2+1+(1-p.H)*p.Sm, 1e-12))
}

func TestPhysicalValidate(t *testing.T) {
	g := NewWithT(t)
	g.Expect(DefaultPhysical().Validate()).To(Succeed())

	p := DefaultPhysical()
	p.H = 1
	g.Expect(errors.Is(p.Validate(), dynamo.ErrParameterBounds)).To(BeTrue())

	p = DefaultPhysical()
	p.Sm = -1
	g.Expect(errors.Is(p.Validate(), dynamo.ErrParameterBounds)).To(BeTrue())
}

func TestNewIntegrator(t *testing.T) {
	g := NewWithT(t)

	integ, err := NewIntegrator(SchemeAdaptive, map[string]any{"epsabs": "1e-6", "points": []any{1, 2}})
	g.Expect(err).NotTo(HaveOccurred())
	a := integ.(*Adaptive)
	g.Expect(a.EpsAbs).To(Equal(1e-6))
	g.Expect(a.Points).To(Equal([]float64{1, 2}))
	g.Expect(a.Limit).To(Equal(50))

	integ, err = NewIntegrator(SchemeMonteCarlo, map[string]any{"n_samples": 500})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(integ.(*MonteCarlo).NSamples).To(Equal(500))
	g.Expect(integ.(*MonteCarlo).RandomState).To(Equal(uint64(42)))

	_, err = NewIntegrator(SchemeAdaptive, map[string]any{"tolerance": 1})
	g.Expect(err).To(HaveOccurred())

	_, err = NewIntegrator(SchemeMonteCarlo, map[string]any{"n_samples": 0})
	g.Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())

	_, err = NewIntegrator("SIMPSON", nil)
	g.Expect(errors.Is(err, dynamo.ErrUnknownScheme)).To(BeTrue())
}

func TestIntegrateTriangle(t *testing.T) {
	g := NewWithT(t)
	one := func(v, t float64) float64 { return 1 }
	tri := Region{A: 0, B: 2, C: constant(0), D: func(t float64) float64 { return t }}

	g.Expect(DefaultAdaptive().Integrate(one, tri)).To(BeNumerically("~", 2, 1e-10))

	mc := DefaultMonteCarlo()
	mc.NSamples = 10000
	first := mc.Integrate(one, tri)
	g.Expect(first).To(BeNumerically("~", 2, 0.05))
	g.Expect(mc.Integrate(one, tri)).To(Equal(first))

	g.Expect(mc.Integrate(one, Region{A: 3, B: 1, C: constant(0), D: constant(1)})).To(BeZero())
}

func independence(g *WithT) copula.Family {
	c, err := copula.New("Gumbel", 1)
	g.Expect(err).NotTo(HaveOccurred())
	return c
}

func TestAdaptiveMatchesAnalytical(t *testing.T) {
	g := NewWithT(t)
	p := DefaultPhysical()
	an := DefaultAnalysis()
	an.V0RangeMax = 30
	lv, lt := 0.1, 0.2

	densities := []NamedDensity{{Name: "Gumbel", F: JointDensity(independence(g), lv, lt)}}
	cdf, err := ComputeCDF(context.Background(), densities, p, an, DefaultAdaptive(), 4)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cdf.Columns).To(Equal([]string{"v0", "Gumbel"}))
	g.Expect(cdf.Len()).To(Equal(30))

	v0s, _ := cdf.Column("v0")
	num, _ := cdf.Column("Gumbel")
	exact := AnalyticalCDF(p, lv, lt, v0s)
	th1, th2 := p.Thresholds()
	for i, v0 := range v0s {
		if v0 > th1 && v0 <= th2 {
			continue
		}
		g.Expect(num[i]).To(BeNumerically("~", exact[i], 1e-6), "v0=%g", v0)
	}
	for i := 1; i < len(num); i++ {
		g.Expect(num[i]).To(BeNumerically(">=", num[i-1]-1e-9))
	}
}

func TestMonteCarloMatchesAdaptive(t *testing.T) {
	g := NewWithT(t)
	p := DefaultPhysical()
	an := DefaultAnalysis()
	an.V0RangeMax = 3
	densities := []NamedDensity{{Name: "Gumbel", F: JointDensity(independence(g), 0.1, 0.2)}}

	mc := DefaultMonteCarlo()
	mc.NSamples = 20000
	ctx := context.Background()
	ref, err := ComputeCDF(ctx, densities, p, an, DefaultAdaptive(), 2)
	g.Expect(err).NotTo(HaveOccurred())
	got, err := ComputeCDF(ctx, densities, p, an, mc, 2)
	g.Expect(err).NotTo(HaveOccurred())

	want, _ := ref.Column("Gumbel")
	est, _ := got.Column("Gumbel")
	for i := range want {
		g.Expect(est[i]).To(BeNumerically("~", want[i], 0.02))
	}
}

func TestComputeCDFEdges(t *testing.T) {
	g := NewWithT(t)
	an := DefaultAnalysis()
	an.V0RangeMax = 5

	cdf, err := ComputeCDF(context.Background(), nil, DefaultPhysical(), an, DefaultAdaptive(), 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cdf.Columns).To(Equal([]string{"v0"}))
	g.Expect(cdf.Len()).To(Equal(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	densities := []NamedDensity{{Name: "Gumbel", F: JointDensity(independence(g), 0.1, 0.2)}}
	_, err = ComputeCDF(ctx, densities, DefaultPhysical(), an, DefaultAdaptive(), 1)
	g.Expect(errors.Is(err, dynamo.ErrContextCanceled)).To(BeTrue())

	g.Expect(V0Grid(0)).To(BeEmpty())
	g.Expect(V0Grid(1)).To(Equal([]float64{0}))
	g.Expect(V0Grid(4)).To(Equal([]float64{0, 4.0 / 3, 8.0 / 3, 4}))
	g.Expect(AnalyticalCDF(DefaultPhysical(), 0.1, 0.2, []float64{-1})).To(Equal([]float64{0}))
}

func TestReturnPeriods(t *testing.T) {
	g := NewWithT(t)

	cdf := dynamo.NewTable("v0", "A", "B")
	for i := range 11 {
		v0 := float64(i)
		g.Expect(cdf.Append(v0, v0/10, math.Min(v0/5, 1))).To(Succeed())
	}

	levels, err := ReturnPeriods(cdf, []float64{1, 2, 1000}, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(levels.Columns).To(Equal([]string{"ReturnPeriod", "A", "B"}))
	g.Expect(levels.Rows[0]).To(Equal([]float64{1, 0, 0}))
	g.Expect(levels.Rows[1][1]).To(BeNumerically("~", 5, 1e-12))
	g.Expect(levels.Rows[1][2]).To(BeNumerically("~", 2.5, 1e-12))
	g.Expect(levels.Rows[2][1]).To(BeNumerically("~", 9.99, 1e-9))
	g.Expect(levels.Rows[2][2]).To(BeNumerically("~", 4.995, 1e-9))

	_, err = ReturnPeriods(cdf, []float64{2}, 0)
	g.Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())

	_, err = ReturnPeriods(dynamo.NewTable("x"), []float64{2}, 1)
	g.Expect(err).To(HaveOccurred())
}

func TestInterp(t *testing.T) {
	g := NewWithT(t)
	g.Expect(math.IsNaN(Interp(0.5, nil, nil))).To(BeTrue())
	g.Expect(Interp(0.5, []float64{0.2}, []float64{7})).To(Equal(7.0))
	g.Expect(Interp(-1, []float64{0, 1}, []float64{10, 20})).To(Equal(10.0))
	g.Expect(Interp(0.25, []float64{0, 1, 1, 2}, []float64{10, 20, 30, 40})).To(BeNumerically("~", 12.5, 1e-12))
}

func testEngine(g *WithT) *Engine {
	an := DefaultAnalysis()
	an.V0RangeMax = 20
	an.ReturnPeriods = []float64{2, 10}
	an.EventsPerYear = 10
	mc, err := NewIntegrator(SchemeMonteCarlo, map[string]any{"n_samples": 2000})
	g.Expect(err).NotTo(HaveOccurred())
	e, err := NewEngine(DefaultPhysical(), an, mc, 4, nil)
	g.Expect(err).NotTo(HaveOccurred())
	return e
}

func events(n int) (volumes, durations []float64) {
	for i := range n {
		d := 1 + float64((i*7)%13)
		durations = append(durations, d)
		volumes = append(volumes, 2*d+float64(i%3))
	}
	return volumes, durations
}

func TestBootstrap(t *testing.T) {
	g := NewWithT(t)
	e := testEngine(g)
	vol, dur := events(30)

	rows, err := e.Bootstrap(context.Background(), vol, dur, []string{"Gaussian", "Gumbel"}, 3, 7)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rows).To(HaveLen(6))
	for i, r := range rows {
		g.Expect(r.Iteration).To(Equal(i/2 + 1))
		g.Expect(r.Levels).To(HaveLen(2))
		g.Expect(r.Levels[1]).To(BeNumerically(">=", r.Levels[0]))
	}
	g.Expect(rows[0].Family).To(Equal("Gaussian"))
	g.Expect(rows[1].Family).To(Equal("Gumbel"))

	again, err := e.Bootstrap(context.Background(), vol, dur, []string{"Gaussian", "Gumbel"}, 3, 7)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again).To(Equal(rows))

	g.Expect(BootstrapHeader([]float64{2, 10})).To(Equal([]string{"iteration", "copula_type", "parameter", "RP_2", "RP_10"}))

	summary := SummarizeBootstrap(rows, []float64{2, 10})
	g.Expect(summary).To(HaveLen(4))
	g.Expect(summary[0].Family).To(Equal("Gaussian"))
	g.Expect(summary[0].Lower).To(BeNumerically("<=", summary[0].Upper))

	_, err = e.Bootstrap(context.Background(), vol, dur, []string{"Joe"}, 1, 7)
	g.Expect(errors.Is(err, dynamo.ErrUnknownScheme)).To(BeTrue())
	_, err = e.Bootstrap(context.Background(), vol, dur[:3], []string{"Gaussian"}, 1, 7)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestSummarizeBootstrap(t *testing.T) {
	g := NewWithT(t)

	var rows []BootstrapRow
	for i := 10; i >= 1; i-- {
		rows = append(rows, BootstrapRow{Iteration: 11 - i, Family: "Frank", Levels: []float64{float64(i), math.NaN()}})
	}
	summary := SummarizeBootstrap(rows, []float64{2, 10})
	g.Expect(summary).To(HaveLen(2))

	s := summary[0]
	g.Expect(s.ReturnPeriod).To(Equal(2.0))
	g.Expect(s.Mean).To(BeNumerically("~", 5.5, 1e-12))
	g.Expect(s.Std).To(BeNumerically("~", math.Sqrt(8.25), 1e-12))
	g.Expect(s.Lower).To(BeNumerically("~", 1.225, 1e-12))
	g.Expect(s.Upper).To(BeNumerically("~", 9.775, 1e-12))

	g.Expect(math.IsNaN(summary[1].Mean)).To(BeTrue())
	g.Expect(math.IsNaN(summary[1].Upper)).To(BeTrue())
}

func TestSensitivity(t *testing.T) {
	g := NewWithT(t)
	e := testEngine(g)

	ranges := map[string][]float64{
		"Clayton": {-2, 1, 2},
		"Gumbel":  {0.5, 1.5},
	}
	cdf, levels, err := e.Sensitivity(context.Background(), []string{"Clayton", "Gumbel", "Frank"}, ranges, 0.1, 0.2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cdf.Columns).To(Equal([]string{"v0", "Clayton_param_1.00", "Clayton_param_2.00", "Gumbel_param_1.50"}))
	g.Expect(levels.Columns).To(Equal([]string{"ReturnPeriod", "Clayton_param_1.00", "Clayton_param_2.00", "Gumbel_param_1.50"}))
	g.Expect(levels.Len()).To(Equal(2))

	_, _, err = e.Sensitivity(context.Background(), []string{"Joe"}, map[string][]float64{"Joe": {1}}, 0.1, 0.2)
	g.Expect(errors.Is(err, dynamo.ErrUnknownScheme)).To(BeTrue())
}
