package grading

import "github.com/shopspring/decimal"

// Grade is a monthly performance band.
type Grade string

const (
	GradeAPlus Grade = "A_PLUS"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeE     Grade = "E"
)

// Thresholds are the inclusive score minimums per band. Scores below the D
// minimum fall into E.
type Thresholds struct {
	APlus decimal.Decimal
	A     decimal.Decimal
	B     decimal.Decimal
	C     decimal.Decimal
	D     decimal.Decimal
}

// GradeForScore maps a score onto its band.
func GradeForScore(score decimal.Decimal, t Thresholds) Grade {
	switch {
	case score.GreaterThanOrEqual(t.APlus):
		return GradeAPlus
	case score.GreaterThanOrEqual(t.A):
		return GradeA
	case score.GreaterThanOrEqual(t.B):
		return GradeB
	case score.GreaterThanOrEqual(t.C):
		return GradeC
	case score.GreaterThanOrEqual(t.D):
		return GradeD
	default:
		return GradeE
	}
}
