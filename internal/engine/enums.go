package engine

import "fmt"

// Stage is the generation progress of the current chapter, in percent.
type Stage int

const (
	StageRequested Stage = 0
	StagePause1    Stage = 50
	StagePause2    Stage = 90
	StageConcluded Stage = 100
)

var AllStages = []Stage{StageRequested, StagePause1, StagePause2, StageConcluded}

// String backed enums for DB interoperability.

type Status string
type RepairReason string
type Tone string
type AgeRating string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

var AllStatuses = []Status{StatusActive, StatusCompleted}

const (
	ReasonNeedChoices RepairReason = "need_choices"
	ReasonNeedFinish  RepairReason = "need_finish"
)

var AllRepairReasons = []RepairReason{ReasonNeedChoices, ReasonNeedFinish}

const (
	ToneAdventure Tone = "Adventure"
	ToneMystery   Tone = "Mystery"
	ToneDrama     Tone = "Drama"
	ToneAction    Tone = "Action"
	ToneFantasy   Tone = "Fantasy"
	ToneHorror    Tone = "Horror"
	ToneRomance   Tone = "Romance"
)

var AllTones = []Tone{ToneAdventure, ToneMystery, ToneDrama, ToneAction, ToneFantasy, ToneHorror, ToneRomance}

const (
	Age10 AgeRating = "10+"
	Age12 AgeRating = "12+"
	Age14 AgeRating = "14+"
	Age16 AgeRating = "16+"
	Age18 AgeRating = "18+"
)

var AllAgeRatings = []AgeRating{Age10, Age12, Age14, Age16, Age18}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s Stage) Validate() bool        { return contains(AllStages, s) }
func (s Status) Validate() bool       { return contains(AllStatuses, s) }
func (r RepairReason) Validate() bool { return contains(AllRepairReasons, r) }
func (t Tone) Validate() bool         { return contains(AllTones, t) }
func (a AgeRating) Validate() bool    { return contains(AllAgeRatings, a) }

func (s Stage) String() string { return fmt.Sprintf("%d%%", int(s)) }

// IsPause reports whether the stage is a decision point.
func (s Stage) IsPause() bool { return s == StagePause1 || s == StagePause2 }

// PauseIndex returns 1 for the first pause, 2 for the second and 0 otherwise.
func (s Stage) PauseIndex() int {
	switch s {
	case StagePause1:
		return 1
	case StagePause2:
		return 2
	}
	return 0
}

// NextStage maps the stage a segment is requested from to the stage it lands on.
func NextStage(from Stage) (Stage, error) {
	switch from {
	case StageRequested:
		return StagePause1, nil
	case StagePause1:
		return StagePause2, nil
	case StagePause2:
		return StageConcluded, nil
	}
	return 0, fmt.Errorf("%w: no segment follows stage %s", ErrInvalidTransition, from)
}
