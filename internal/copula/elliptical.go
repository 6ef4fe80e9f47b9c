package copula

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is the normal copula with correlation Rho.
type Gaussian struct {
	Rho float64
}

func NewGaussian(rho float64) (*Gaussian, error) {
	if !(rho > -1 && rho < 1) {
		return nil, paramError("Gaussian", "rho", rho, "in (-1, 1)")
	}
	return &Gaussian{Rho: rho}, nil
}

func (g *Gaussian) Name() string      { return "Gaussian" }
func (g *Gaussian) Params() []float64 { return []float64{g.Rho} }
func (g *Gaussian) NumParams() int    { return 1 }

func (g *Gaussian) LogPDF(u, v float64) float64 {
	x := distuv.UnitNormal.Quantile(u)
	y := distuv.UnitNormal.Quantile(v)
	r2 := g.Rho * g.Rho
	return -0.5*math.Log(1-r2) - (r2*(x*x+y*y)-2*g.Rho*x*y)/(2*(1-r2))
}

func (g *Gaussian) PDF(u, v float64) float64 { return math.Exp(g.LogPDF(u, v)) }

func (g *Gaussian) Tau() float64 { return 2 / math.Pi * math.Asin(g.Rho) }

func (g *Gaussian) TailDependence() (float64, float64) { return 0, 0 }

// Student is the t copula with correlation Rho and DF degrees of freedom.
type Student struct {
	Rho float64
	DF  float64

	marginal distuv.StudentsT
	logNorm  float64
}

func NewStudent(rho, df float64) (*Student, error) {
	if !(rho > -1 && rho < 1) {
		return nil, paramError("t", "rho", rho, "in (-1, 1)")
	}
	if df <= 0 {
		return nil, paramError("t", "df", df, "positive")
	}
	lg1, _ := math.Lgamma((df + 2) / 2)
	lg2, _ := math.Lgamma(df / 2)
	return &Student{
		Rho:      rho,
		DF:       df,
		marginal: distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df},
		logNorm:  lg1 - lg2 - math.Log(df*math.Pi) - 0.5*math.Log(1-rho*rho),
	}, nil
}

func (s *Student) Name() string      { return "t" }
func (s *Student) Params() []float64 { return []float64{s.Rho, s.DF} }
func (s *Student) NumParams() int    { return 2 }

func (s *Student) LogPDF(u, v float64) float64 {
	x := s.marginal.Quantile(u)
	y := s.marginal.Quantile(v)
	q := (x*x - 2*s.Rho*x*y + y*y) / (s.DF * (1 - s.Rho*s.Rho))
	joint := s.logNorm - (s.DF+2)/2*math.Log1p(q)
	return joint - s.marginal.LogProb(x) - s.marginal.LogProb(y)
}

func (s *Student) PDF(u, v float64) float64 { return math.Exp(s.LogPDF(u, v)) }

func (s *Student) Tau() float64 { return 2 / math.Pi * math.Asin(s.Rho) }

// TailDependence is symmetric: 2·t_{ν+1}(−sqrt((ν+1)(1−ρ)/(1+ρ))).
func (s *Student) TailDependence() (float64, float64) {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: s.DF + 1}
	lam := 2 * t.CDF(-math.Sqrt((s.DF+1)*(1-s.Rho)/(1+s.Rho)))
	return lam, lam
}
