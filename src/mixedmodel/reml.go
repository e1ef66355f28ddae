package mixedmodel

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

// FittedModel is the immutable result of one mixed-model fit.
//
// Coefficients follow the design column order; Cov is their sampling
// covariance under the REML variance estimates. Tau2 is the
// random-intercept variance, Sigma2 the residual variance. REMLCriterion
// is the profiled REML deviance at the optimum with additive constants
// dropped, so it compares fits on the same data only.
type FittedModel struct {
	Design *Design

	Coef   []float64
	SE     []float64
	TStat  []float64
	PValue []float64
	Cov    *mat.SymDense

	Sigma2        float64
	Tau2          float64
	Theta         float64 // Tau2 / Sigma2
	REMLCriterion float64

	NObs    int
	Dropped int // missing-response rows excluded before fitting
	Groups  int // realized random-intercept levels
	DenDF   float64
}

// moments are the sufficient statistics for the profiled REML criterion:
// whole-sample cross products plus per-cell sums, which is all the
// compound-symmetry (Woodbury) inverse needs.
type moments struct {
	n, p int
	xtx  [][]float64
	xty  []float64
	yty  float64
	cell []cellMoment
}

type cellMoment struct {
	n  int
	sx []float64
	sy float64
}

type profileFit struct {
	theta float64
	chol  mat.Cholesky
	beta  []float64
	q     float64 // GLS residual quadratic form
	dev   float64
}

// Fit estimates the random-intercept mixed model for the given dose scale.
// Fixed effects are the full dose x time x group factorial; the random
// intercept is keyed by the (dose, time, group) cell. Rows with a missing
// response are dropped before fitting. Returns DomainError for a
// non-positive dose under DoseAsLog10 and ConvergenceError when the
// profiled REML search or the fixed-effect solve fails.
func Fit(obs []dataset.Observation, scale DoseScale, logger *zap.Logger) (*FittedModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]dataset.Observation, 0, len(obs))
	for _, o := range obs {
		if !math.IsNaN(o.Value) {
			kept = append(kept, o)
		}
	}
	dropped := len(obs) - len(kept)
	if dropped > 0 {
		logger.Debug("dropping missing responses before fit", zap.Int("dropped", dropped))
	}

	design, err := NewDesign(kept, scale)
	if err != nil {
		return nil, err
	}

	n, p := len(kept), design.P
	if n <= p {
		return nil, &ConvergenceError{Reason: "fewer observations than fixed-effect parameters"}
	}

	rows := make([][]float64, n)
	y := make([]float64, n)
	cellRows := make(map[int][]int)
	for i, o := range kept {
		r, err := design.Row(&o.Dose, &o.Time, &o.Group)
		if err != nil {
			return nil, err
		}
		id, err := design.CellID(o.Dose, o.Time, o.Group)
		if err != nil {
			return nil, err
		}
		rows[i] = r
		y[i] = o.Value
		cellRows[id] = append(cellRows[id], i)
	}

	mom := buildMoments(rows, y, cellRows, p)

	obj := func(theta float64) float64 {
		pf, err := evalProfile(mom, theta)
		if err != nil {
			return math.Inf(1)
		}
		return pf.dev
	}
	problem := optimize.Problem{Func: func(x []float64) float64 {
		return obj(math.Exp(x[0]))
	}}
	result, err := optimize.Minimize(problem, []float64{0}, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, &ConvergenceError{Reason: "REML profile search", Err: err}
	}
	if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, &ConvergenceError{Reason: "REML criterion not finite at optimum"}
	}
	theta := math.Exp(result.X[0])

	// Prefer the boundary when it is as good as the interior optimum: a
	// saturated factor design leaves theta unidentified and the boundary is
	// the deterministic choice (the singular-fit outcome).
	const boundary = 1e-12
	if devB := obj(boundary); devB <= result.F+1e-6 {
		theta = 0
	}

	final, err := evalProfile(mom, theta)
	if err != nil {
		return nil, &ConvergenceError{Reason: "final profile evaluation", Err: err}
	}

	sigma2 := final.q / float64(n-p)
	denDF := float64(n - p)
	if denDF < 1 {
		denDF = 1
	}

	var inv mat.SymDense
	if err := final.chol.InverseTo(&inv); err != nil {
		return nil, &ConvergenceError{Reason: "covariance inversion", Err: err}
	}
	cov := mat.NewSymDense(p, nil)
	cov.ScaleSym(sigma2, &inv)

	m := &FittedModel{
		Design:        design,
		Coef:          final.beta,
		SE:            make([]float64, p),
		TStat:         make([]float64, p),
		PValue:        make([]float64, p),
		Cov:           cov,
		Sigma2:        sigma2,
		Tau2:          theta * sigma2,
		Theta:         theta,
		REMLCriterion: final.dev,
		NObs:          n,
		Dropped:       dropped,
		Groups:        len(cellRows),
		DenDF:         denDF,
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: denDF}
	for i := 0; i < p; i++ {
		se := math.Sqrt(cov.At(i, i))
		m.SE[i] = se
		if se > 0 {
			m.TStat[i] = final.beta[i] / se
			m.PValue[i] = 2 * tdist.Survival(math.Abs(m.TStat[i]))
		} else {
			m.TStat[i] = math.NaN()
			m.PValue[i] = math.NaN()
		}
	}
	logger.Info("mixed model fitted",
		zap.String("dose_scale", scale.String()),
		zap.Int("n", n), zap.Int("p", p), zap.Int("groups", m.Groups),
		zap.Float64("sigma2", sigma2), zap.Float64("tau2", m.Tau2))
	return m, nil
}

func buildMoments(rows [][]float64, y []float64, cellRows map[int][]int, p int) *moments {
	mom := &moments{n: len(rows), p: p, xty: make([]float64, p)}
	mom.xtx = make([][]float64, p)
	for i := range mom.xtx {
		mom.xtx[i] = make([]float64, p)
	}
	for i, r := range rows {
		for a := 0; a < p; a++ {
			mom.xty[a] += r[a] * y[i]
			for b := a; b < p; b++ {
				mom.xtx[a][b] += r[a] * r[b]
			}
		}
		mom.yty += y[i] * y[i]
	}
	// mirror the upper triangle
	for a := 0; a < p; a++ {
		for b := a + 1; b < p; b++ {
			mom.xtx[b][a] = mom.xtx[a][b]
		}
	}
	for _, idx := range cellRows {
		cm := cellMoment{n: len(idx), sx: make([]float64, p)}
		for _, i := range idx {
			for a := 0; a < p; a++ {
				cm.sx[a] += rows[i][a]
			}
			cm.sy += y[i]
		}
		mom.cell = append(mom.cell, cm)
	}
	return mom
}

// evalProfile computes the profiled REML criterion at a fixed variance
// ratio theta. With R = I + theta*Z*Z', each cell's block inverts in
// closed form: inv(I + theta*J) = I - theta/(1+n*theta)*J, so the GLS
// cross products are whole-sample moments minus per-cell corrections.
func evalProfile(mom *moments, theta float64) (*profileFit, error) {
	p := mom.p
	xtrx := make([]float64, p*p)
	for a := 0; a < p; a++ {
		for b := 0; b < p; b++ {
			xtrx[a*p+b] = mom.xtx[a][b]
		}
	}
	xtry := append([]float64(nil), mom.xty...)
	ytry := mom.yty
	var logDetR float64
	for _, cm := range mom.cell {
		c := theta / (1 + float64(cm.n)*theta)
		logDetR += math.Log(1 + float64(cm.n)*theta)
		for a := 0; a < p; a++ {
			xtry[a] -= c * cm.sy * cm.sx[a]
			for b := 0; b < p; b++ {
				xtrx[a*p+b] -= c * cm.sx[a] * cm.sx[b]
			}
		}
		ytry -= c * cm.sy * cm.sy
	}

	sym := mat.NewSymDense(p, xtrx)
	pf := &profileFit{theta: theta}
	if ok := pf.chol.Factorize(sym); !ok {
		return nil, &ConvergenceError{Reason: "X'V⁻¹X not positive definite"}
	}
	var betaVec mat.VecDense
	if err := pf.chol.SolveVecTo(&betaVec, mat.NewVecDense(p, xtry)); err != nil {
		return nil, &ConvergenceError{Reason: "fixed-effect solve", Err: err}
	}
	pf.beta = make([]float64, p)
	for i := 0; i < p; i++ {
		pf.beta[i] = betaVec.AtVec(i)
	}
	pf.q = ytry
	for i := 0; i < p; i++ {
		pf.q -= pf.beta[i] * xtry[i]
	}
	if pf.q <= 0 || math.IsNaN(pf.q) {
		return nil, &ConvergenceError{Reason: "non-positive residual quadratic form"}
	}
	pf.dev = float64(mom.n-p)*math.Log(pf.q) + logDetR + pf.chol.LogDet()
	return pf, nil
}
