package domain

import "testing"

func TestActivitiesForDay(t *testing.T) {
	template := Template{
		TotalDays: 2,
		Activities: []PlannedActivity{
			{Day: 2, Name: "Other Day", StartTime: "08:00", DurationMinutes: 30},
			{Day: 1, Name: "Late", StartTime: "14:00", DurationMinutes: 30},
			{Day: 1, Name: "Early", StartTime: "09:00", DurationMinutes: 30},
			{Day: 1, Name: "Tie First", StartTime: "10:00", DurationMinutes: 30},
			{Day: 1, Name: "Tie Second", StartTime: "10:00", DurationMinutes: 30},
		},
	}

	got := template.ActivitiesForDay(1)
	want := []string{"Early", "Tie First", "Tie Second", "Late"}
	if len(got) != len(want) {
		t.Fatalf("count = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("activity[%d] = %q, want %q", i, got[i].Name, name)
		}
	}

	if got := template.ActivitiesForDay(3); len(got) != 0 {
		t.Errorf("day without activities: got %d entries", len(got))
	}
}

func TestCurrentActivity(t *testing.T) {
	session := ScheduleSession{
		Activities: []ActivityExecution{{Name: "A"}, {Name: "B"}},
	}

	session.ActiveIndex = 1
	if got := session.CurrentActivity(); got == nil || got.Name != "B" {
		t.Errorf("current = %+v, want B", got)
	}

	session.ActiveIndex = 2
	if got := session.CurrentActivity(); got != nil {
		t.Errorf("out-of-range index should yield nil, got %+v", got)
	}
}
