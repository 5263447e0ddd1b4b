package domain

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlannedActivity is one planned entry of a template day.
// StartTime is a wall-clock value in "HH:MM" form; the calendar date is only
// known once a session runs the day.
type PlannedActivity struct {
	Day             int      `bson:"day" json:"day"` // 1..TotalDays
	Name            string   `bson:"name" json:"name"`
	Description     string   `bson:"description,omitempty" json:"description,omitempty"`
	StartTime       string   `bson:"startTime" json:"startTime"`
	DurationMinutes int      `bson:"durationMinutes" json:"durationMinutes"`
	Tags            []string `bson:"tags,omitempty" json:"tags,omitempty"`
}

// Template represents an immutable multi-day training program definition.
type Template struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	TotalDays   int                `bson:"totalDays" json:"totalDays"`
	Activities  []PlannedActivity  `bson:"activities" json:"activities"`
	CreatedBy   primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ActivitiesForDay returns the template's planned activities for one day,
// ordered by start time. The sort is stable: entries with the same start
// time keep the order the template stored them in.
func (t *Template) ActivitiesForDay(day int) []PlannedActivity {
	var out []PlannedActivity
	for _, a := range t.Activities {
		if a.Day == day {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
