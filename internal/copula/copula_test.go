package copula

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/integrate/quad"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

func TestKendallTau(t *testing.T) {
	g := NewWithT(t)

	tau, err := KendallTau([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(tau).To(BeNumerically("~", 1, 1e-12))

	tau, _ = KendallTau([]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1})
	g.Expect(tau).To(BeNumerically("~", -1, 1e-12))

	tau, _ = KendallTau([]float64{1, 2, 2, 3}, []float64{1, 3, 2, 4})
	g.Expect(tau).To(BeNumerically("~", 5/math.Sqrt(30), 1e-12))

	_, err = KendallTau([]float64{1}, []float64{1, 2})
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	_, err = KendallTau([]float64{1}, []float64{1})
	g.Expect(errors.Is(err, dynamo.ErrEmptyInput)).To(BeTrue())
}

func TestPseudoObservations(t *testing.T) {
	g := NewWithT(t)

	g.Expect(Ranks([]float64{10, 20, 20, 5})).To(Equal([]float64{2, 3.5, 3.5, 1}))

	u, v, err := PseudoObservations([]float64{3, 1, 2}, []float64{5, 6, 4})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u).To(Equal([]float64{0.75, 0.25, 0.5}))
	g.Expect(v).To(Equal([]float64{0.5, 0.75, 0.25}))
}

func TestParameterFromTau(t *testing.T) {
	g := NewWithT(t)

	tests := []struct {
		family string
		tau    float64
		want   float64
	}{
		{"Gaussian", 0.5, math.Sqrt2 / 2},
		{"t", 0.5, math.Sqrt2 / 2},
		{"Clayton", 0.5, 2},
		{"Gumbel", 0.5, 2},
		{"Frank", 0.5, 5.7363},
	}
	for _, tt := range tests {
		c, _, err := lookup(tt.family)
		g.Expect(err).NotTo(HaveOccurred())
		p, err := c.fromTau(tt.tau)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(p).To(BeNumerically("~", tt.want, 1e-3), tt.family)

		f, err := c.fromParam(p)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(f.Tau()).To(BeNumerically("~", tt.tau, 1e-9), tt.family)
	}

	theta, err := frankFromTau(-0.3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(theta).To(BeNumerically("<", 0))
	g.Expect(frankTau(theta)).To(BeNumerically("~", -0.3, 1e-9))
}

func TestDensities(t *testing.T) {
	g := NewWithT(t)

	gauss, _ := NewGaussian(0.6)
	g.Expect(gauss.PDF(0.5, 0.5)).To(BeNumerically("~", 1/math.Sqrt(1-0.36), 1e-12))
	g.Expect(gauss.PDF(0.2, 0.7)).To(BeNumerically("~", gauss.PDF(0.7, 0.2), 1e-12))

	clayton, _ := NewClayton(1)
	g.Expect(clayton.PDF(0.5, 0.5)).To(BeNumerically("~", 32.0/27.0, 1e-12))

	indep, _ := NewGumbel(1)
	g.Expect(indep.PDF(0.3, 0.8)).To(BeNumerically("~", 1, 1e-12))

	zero, _ := NewFrank(0)
	g.Expect(zero.PDF(0.1, 0.9)).To(Equal(1.0))
	g.Expect(zero.Tau()).To(Equal(0.0))

	student, _ := NewStudent(0.4, StudentDF)
	g.Expect(student.LogPDF(0.3, 0.6)).To(BeNumerically("~", math.Log(student.PDF(0.3, 0.6)), 1e-12))

	// The Frank density is smooth on the unit square and integrates to one.
	frank, _ := NewFrank(3)
	total := quad.Fixed(func(u float64) float64 {
		return quad.Fixed(func(v float64) float64 { return frank.PDF(u, v) }, 0, 1, 30, nil, 0)
	}, 0, 1, 30, nil, 0)
	g.Expect(total).To(BeNumerically("~", 1, 1e-8))
}

func TestTailDependence(t *testing.T) {
	g := NewWithT(t)

	gumbel, _ := NewGumbel(2)
	lo, up := gumbel.TailDependence()
	g.Expect(lo).To(Equal(0.0))
	g.Expect(up).To(BeNumerically("~", 2-math.Sqrt2, 1e-12))

	clayton, _ := NewClayton(2)
	lo, up = clayton.TailDependence()
	g.Expect(lo).To(BeNumerically("~", math.Pow(2, -0.5), 1e-12))
	g.Expect(up).To(Equal(0.0))

	student, _ := NewStudent(0.5, StudentDF)
	lo, up = student.TailDependence()
	g.Expect(lo).To(BeNumerically(">", 0))
	g.Expect(lo).To(Equal(up))

	gauss, _ := NewGaussian(0.9)
	lo, up = gauss.TailDependence()
	g.Expect([]float64{lo, up}).To(Equal([]float64{0, 0}))
}

func TestNewErrors(t *testing.T) {
	g := NewWithT(t)

	for _, tc := range []struct {
		family string
		param  float64
	}{
		{"Clayton", -1},
		{"Clayton", 0},
		{"Gumbel", 0.5},
		{"Gaussian", 1},
		{"t", -1.2},
		{"Frank", math.Inf(1)},
	} {
		_, err := New(tc.family, tc.param)
		g.Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue(), "%s(%g): %v", tc.family, tc.param, err)
	}

	_, err := New("Joe", 2)
	g.Expect(errors.Is(err, dynamo.ErrUnknownScheme)).To(BeTrue())
	g.Expect(err.Error()).To(ContainSubstring("unsupported copula family: Joe"))

	f, err := New("Student", 0.2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.Name()).To(Equal("t"))
}

func correlated(n int) (x, y []float64) {
	for i := range n {
		x = append(x, float64(i))
		y = append(y, float64(i)+3*float64((i*7)%5))
	}
	return x, y
}

func TestFitAll(t *testing.T) {
	g := NewWithT(t)

	u, v, err := PseudoObservations(correlated(50))
	g.Expect(err).NotTo(HaveOccurred())

	fitted, err := FitAll([]string{"Gaussian", "t", "Clayton", "Gumbel", "Frank"}, u, v)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fitted).To(HaveLen(5))

	for _, f := range fitted {
		m := f.Metrics
		g.Expect(m.Tau).To(BeNumerically("~", m.EmpiricalTau, 1e-6), m.Family)
		g.Expect(math.IsInf(m.LogLik, 0) || math.IsNaN(m.LogLik)).To(BeFalse(), m.Family)
		k := 1.0
		if m.Family == "t" {
			k = 2
			g.Expect(m.DF).To(Equal(float64(StudentDF)))
		} else {
			g.Expect(math.IsNaN(m.DF)).To(BeTrue())
		}
		g.Expect(m.AIC).To(BeNumerically("~", 2*k-2*m.LogLik, 1e-9))
		g.Expect(m.BIC).To(BeNumerically("~", k*math.Log(50)-2*m.LogLik, 1e-9))
	}

	_, err = FitAll([]string{"Gaussian", "Joe"}, u, v)
	g.Expect(errors.Is(err, dynamo.ErrUnknownScheme)).To(BeTrue())
}

func TestEvaluateIndependence(t *testing.T) {
	g := NewWithT(t)

	indep, _ := NewGumbel(1)
	m, err := Evaluate(indep, []float64{0.2, 0.4, 0.6}, []float64{0.6, 0.2, 0.4})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.LogLik).To(BeNumerically("~", 0, 1e-12))
	g.Expect(m.AIC).To(BeNumerically("~", 2, 1e-12))
	g.Expect(m.BIC).To(BeNumerically("~", math.Log(3), 1e-12))

	_, err = Evaluate(indep, nil, nil)
	g.Expect(errors.Is(err, dynamo.ErrEmptyInput)).To(BeTrue())
}

func TestFitAntiDependent(t *testing.T) {
	g := NewWithT(t)

	u, v, err := PseudoObservations(
		[]float64{1, 2, 3, 4, 5, 6, 7, 8},
		[]float64{8, 6, 7, 5, 3, 4, 2, 1},
	)
	g.Expect(err).NotTo(HaveOccurred())
	tau, _ := KendallTau(u, v)
	g.Expect(tau).To(BeNumerically("<", -0.8))

	gumbel, err := Fit("Gumbel", u, v)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(gumbel.Params()).To(Equal([]float64{1}))
	g.Expect(gumbel.Tau()).To(Equal(0.0))

	fitted, err := FitAll([]string{"Gaussian", "Clayton", "Gumbel", "Frank"}, u, v)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fitted).To(HaveLen(4))
	g.Expect(fitted[1].Family.Params()[0]).To(BeNumerically("<", 0))
	g.Expect(fitted[3].Family.Params()[0]).To(BeNumerically("<", 0))
}
