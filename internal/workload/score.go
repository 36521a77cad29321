package workload

import (
	"github.com/carelane/medassign/internal/cases"
)

// Score weights. Load headroom dominates, then specialization fit, then
// rating, then availability posture.
const (
	weightLoad         = 0.40
	weightSpecialty    = 0.30
	weightRating       = 0.20
	weightAvailability = 0.10

	specialtyExact     = 1.0
	specialtySecondary = 0.6
	specialtyNone      = 0.1
)

// Requirements is what a case asks of a candidate doctor.
type Requirements struct {
	Specialty string
	Urgency   cases.Urgency
}

// Score computes a matching score in [0,1] for a doctor against a case's
// requirements. The second return value is false when the doctor is excluded
// outright (unavailable or at capacity) and the score is undefined.
func Score(snap *DoctorWorkloadSnapshot, req Requirements) (float64, bool) {
	if snap == nil || !snap.IsAvailable || snap.AtCapacity() {
		return 0, false
	}

	score := weightLoad*loadScore(snap) +
		weightSpecialty*specialtyScore(snap, req.Specialty) +
		weightRating*ratingScore(snap.AverageRating) +
		weightAvailability*availabilityScore(snap, req.Urgency)

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, true
}

// loadScore is the doctor's remaining headroom: 1.0 when idle, approaching 0
// as active cases reach the maximum.
func loadScore(snap *DoctorWorkloadSnapshot) float64 {
	if snap.MaxActiveCases <= 0 {
		return 1
	}
	return 1 - float64(snap.ActiveCases)/float64(snap.MaxActiveCases)
}

func specialtyScore(snap *DoctorWorkloadSnapshot, required string) float64 {
	if required == "" || snap.PrimarySpecialty == required {
		return specialtyExact
	}
	for _, s := range snap.SecondarySpecialties {
		if s == required {
			return specialtySecondary
		}
	}
	return specialtyNone
}

func ratingScore(rating float64) float64 {
	if rating <= 0 {
		return 0.5 // unrated doctors land in the middle
	}
	if rating > 5 {
		rating = 5
	}
	return rating / 5
}

// availabilityScore penalizes emergency mode unless the case itself is
// urgent, in which case an emergency-mode doctor is exactly who should take
// it.
func availabilityScore(snap *DoctorWorkloadSnapshot, urgency cases.Urgency) float64 {
	if !snap.EmergencyMode {
		return 1
	}
	if urgency.IsCritical() {
		return 1
	}
	return 0.2
}
