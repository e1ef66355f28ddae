// Package effects computes significance tests, estimated marginal means
// and pairwise contrasts over a fitted mixed model.
package effects

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fernangomezv/Thesis-Leo/src/mixedmodel"
)

// TermTest is the Type III Wald F test for one fixed-effect term.
type TermTest struct {
	Term  string  `json:"term"`
	F     float64 `json:"f"`
	NumDF int     `json:"num_df"`
	DenDF float64 `json:"den_df"`
	P     float64 `json:"p"`
}

// ANOVA runs a Type III Wald F test per fixed-effect term: each term's
// coefficient block is tested with every other term held in the model.
// This is only meaningful under the sum-to-zero factor coding the fitter
// guarantees, which is why the coding lives in the design and not here.
func ANOVA(m *mixedmodel.FittedModel) ([]TermTest, error) {
	out := make([]TermTest, 0, len(m.Design.Terms))
	fdist := distuv.F{D2: m.DenDF}
	for _, term := range m.Design.Terms {
		q := len(term.Cols)
		b := mat.NewVecDense(q, nil)
		sub := mat.NewSymDense(q, nil)
		for i, ci := range term.Cols {
			b.SetVec(i, m.Coef[ci])
			for j, cj := range term.Cols {
				if j >= i {
					sub.SetSym(i, j, m.Cov.At(ci, cj))
				}
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(sub); !ok {
			return nil, fmt.Errorf("anova: covariance block for %s not positive definite", term.Name)
		}
		var s mat.VecDense
		if err := chol.SolveVecTo(&s, b); err != nil {
			return nil, fmt.Errorf("anova: solve for %s: %w", term.Name, err)
		}
		f := mat.Dot(b, &s) / float64(q)
		fdist.D1 = float64(q)
		out = append(out, TermTest{
			Term:  term.Name,
			F:     f,
			NumDF: q,
			DenDF: m.DenDF,
			P:     fdist.Survival(f),
		})
	}
	return out, nil
}
