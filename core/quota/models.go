package quota

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// KindExceeded tags quota errors on the wire.
const KindExceeded = "quota_exceeded"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

func (p Plan) Valid() bool { return p == PlanFree || p == PlanPro }

type Feature string

const (
	FeatureLectureUpload Feature = "lecture_upload"
	FeatureFlashcards    Feature = "flashcard_generation"
	FeatureReferences    Feature = "academic_references"
)

var (
	Features = []Feature{FeatureLectureUpload, FeatureFlashcards, FeatureReferences}

	featureLabels = map[Feature]string{
		FeatureLectureUpload: "Lecture Upload",
		FeatureFlashcards:    "Flashcard Generation",
		FeatureReferences:    "Academic References",
	}
)

// Label is the human name of the feature, as shown on upgrade prompts.
func (f Feature) Label() string {
	if l, ok := featureLabels[f]; ok {
		return l
	}
	return string(f)
}

// Limits holds the monthly allowance of each feature per plan.
type Limits map[Plan]map[Feature]int

var DefaultLimits = Limits{
	PlanFree: {
		FeatureLectureUpload: 3,
		FeatureFlashcards:    5,
		FeatureReferences:    5,
	},
	PlanPro: {
		FeatureLectureUpload: 50,
		FeatureFlashcards:    200,
		FeatureReferences:    200,
	},
}

func (l Limits) Of(plan Plan, feature Feature) int {
	if fl, ok := l[plan]; ok {
		return fl[feature]
	}
	return l[PlanFree][feature]
}

// Period is the monthly usage bucket of t (UTC), eg: "2026-10".
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type Usage struct {
	Feature   Feature `json:"feature"`
	Label     string  `json:"label"`
	Period    string  `json:"period"`
	Used      int     `json:"used"`
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
}

// ExceededError is returned whenever a plan-limited feature has no allowance left for the month.
type ExceededError struct {
	Kind      string  `json:"kind"`
	Plan      Plan    `json:"plan"`
	Feature   Feature `json:"feature"`
	Limit     int     `json:"limit"`
	Used      int     `json:"used"`
	Remaining int     `json:"remaining"`
}

func NewExceededError(plan Plan, feature Feature, limit, used int) *ExceededError {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &ExceededError{
		Kind:      KindExceeded,
		Plan:      plan,
		Feature:   feature,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
	}
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s limit of %d per month reached on the %s plan", KindExceeded, e.Feature, e.Limit, e.Plan)
}

// HideUpgrade reports whether there is no higher plan to offer.
func (e *ExceededError) HideUpgrade() bool { return e.Plan == PlanPro }

// Message is the user-facing explanation of the limit.
func (e *ExceededError) Message() string {
	if e.HideUpgrade() {
		return fmt.Sprintf(
			"You've used all of this month's AI usage for %s. It will reset next month.",
			featureNoun(e.Feature))
	}
	switch e.Feature {
	case FeatureLectureUpload:
		return fmt.Sprintf(
			"Upgrade to Pro for %d AI-processed lecture uploads per month.",
			DefaultLimits.Of(PlanPro, FeatureLectureUpload))
	case FeatureFlashcards:
		return fmt.Sprintf(
			"Upgrade to Pro to generate up to %d flashcard sets per month.",
			DefaultLimits.Of(PlanPro, FeatureFlashcards))
	default:
		return fmt.Sprintf("Upgrade to Pro to unlock more %s.", featureNoun(e.Feature))
	}
}

func featureNoun(f Feature) string {
	switch f {
	case FeatureLectureUpload:
		return "lecture uploads"
	case FeatureFlashcards:
		return "flashcard generation"
	case FeatureReferences:
		return "academic references"
	}
	return string(f)
}

// AsExceeded extracts the quota error from err's chain, if any.
func AsExceeded(err error) (*ExceededError, bool) {
	var qe *ExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

func IsExceeded(err error) bool {
	_, ok := AsExceeded(err)
	return ok
}
