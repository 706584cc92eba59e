package main

import (
	"math"
)

// Energy is the KL-derived energy between N(muC, sigmaC) and N(muX, sigmaX)
// with diagonal covariances:
//
//	0.5 * (tr(sigmaC/sigmaX) + (muX-muC)^2/sigmaX - d - log(prod sigmaX / prod sigmaC))
//
// The log-determinant term is subtracted, so unlike a true KL divergence the
// value is not bounded below. It is zero for identical distributions and not
// symmetric in its arguments.
func Energy(muC, sigmaC, muX, sigmaX []float64) float64 {
	var trace, quad, logdet float64
	for d := range muC {
		diff := muX[d] - muC[d]
		trace += sigmaC[d] / sigmaX[d]
		quad += diff * diff / sigmaX[d]
		logdet += math.Log(sigmaX[d]) - math.Log(sigmaC[d])
	}
	return 0.5 * (trace + quad - float64(len(muC)) - logdet)
}

// WindowEnergies returns the summed energies of the center against its
// context window and against its negative window.
func WindowEnergies(p *Params, center int, context, negative []int) (pos, neg float64) {
	mc, sc := p.MuRow(center), p.SigmaRow(center)
	for _, id := range context {
		pos += Energy(mc, sc, p.MuRow(id), p.SigmaRow(id))
	}
	for _, id := range negative {
		neg += Energy(mc, sc, p.MuRow(id), p.SigmaRow(id))
	}
	return pos, neg
}

// MarginLoss is max(0, margin - pos + neg).
func MarginLoss(margin, pos, neg float64) float64 {
	return math.Max(0, margin-pos+neg)
}

// BatchLoss is the mean margin loss over the batch.
func BatchLoss(p *Params, b Batch, margin float64) float64 {
	if b.Len() == 0 {
		return 0
	}
	var total float64
	for i, c := range b.Center {
		pos, neg := WindowEnergies(p, c, b.Context[i], b.Negative[i])
		total += MarginLoss(margin, pos, neg)
	}
	return total / float64(b.Len())
}
