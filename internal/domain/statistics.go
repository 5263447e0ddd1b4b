package domain

// FilterAll is the wildcard value accepted by every StatisticsFilter field.
const FilterAll = "all"

// StatisticsFilter narrows the statistics scan. TrainerID and TrainingID are
// hex ObjectIDs or "all"; Day 0 means every day; DateRange is one of
// "all", "7d", "30d", "90d".
type StatisticsFilter struct {
	TrainerID  string `bson:"trainerId" json:"trainerId"`
	TrainingID string `bson:"trainingId" json:"trainingId"`
	Day        int    `bson:"day,omitempty" json:"day,omitempty"`
	DateRange  string `bson:"dateRange" json:"dateRange"`
}

// AdherenceRow is one raw per-occurrence record: did this activity start on
// time, and how far did its duration drift from plan. Rows are deliberately
// not deduplicated so they can be exported as-is.
type AdherenceRow struct {
	ActivityName     string `json:"activityName"`
	OnTime           bool   `json:"onTime"`
	Delayed          bool   `json:"delayed"`
	DurationVariance int    `json:"durationVariance"` // minutes, signed
}

// TrainingVariance is the averaged duration variance for one training program.
type TrainingVariance struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TimeVariance int    `json:"timeVariance"` // minutes, signed, rounded
}

// TrainerVariance is the averaged duration variance for one trainer.
type TrainerVariance struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TimeVariance int    `json:"timeVariance"`
}

// ActivityRanking ranks one activity name by how far its mean actual duration
// drifts from its mean planned duration across all qualifying occurrences.
type ActivityRanking struct {
	ActivityName      string `json:"activityName"`
	DifferenceMinutes int    `json:"differenceMinutes"` // signed
	Difference        string `json:"difference"`        // "Xh Ymin" or "Ymin"
}

// ActivityDayStat is the per-activity-name breakdown inside one
// (training, day) bucket.
type ActivityDayStat struct {
	ActivityName         string `json:"activityName"`
	MeanDurationVariance int    `json:"meanDurationVariance"` // minutes, signed
	MeanActualDuration   int    `json:"meanActualDuration"`   // minutes
}

// DayStats holds the per-activity breakdown for one (training, day) pair.
type DayStats struct {
	TrainingID string            `json:"trainingId"`
	Day        int               `json:"day"`
	Activities []ActivityDayStat `json:"activities"`
}

// StatisticsReport is the full aggregation result. The shape is always
// complete: a degraded upstream slice leaves its section zeroed/empty and
// adds a note, it never drops the field.
type StatisticsReport struct {
	Adherence               []AdherenceRow      `json:"adherence"`
	OnTimeStartRate         int                 `json:"onTimeStartRate"` // percentage 0..100
	TotalCompletedDays      int                 `json:"totalCompletedDays"`
	MostDelayedActivities   []ActivityRanking   `json:"mostDelayedActivities"`
	MostEfficientActivities []ActivityRanking   `json:"mostEfficientActivities"`
	Trainings               []TrainingVariance  `json:"trainings"`
	Trainers                []TrainerVariance   `json:"trainers"`
	DaySpecificStats        map[string]DayStats `json:"daySpecificStats"` // keyed "trainingId:day"
	Notes                   []string            `json:"notes,omitempty"`  // degraded-slice diagnostics
}
