package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(status map[string]EngineStatus) *StatusReport {
	return &StatusReport{TaskID: "t1", Status: status}
}

func TestSearchTask_MergeCompletedIsSticky(t *testing.T) {
	task := NewSearchTask("t1", DefaultEngines, time.Now())

	task.Merge(report(map[string]EngineStatus{"google": StatusCompleted}))
	task.Merge(report(map[string]EngineStatus{"google": StatusPending}))
	task.Merge(report(map[string]EngineStatus{"google": StatusFailed}))

	assert.Equal(t, StatusCompleted, task.Engines["google"])
	assert.Equal(t, 1, task.Completed())
	assert.InDelta(t, 1.0/3.0, task.Progress(), 1e-9)
}

func TestSearchTask_MergeIgnoresUnknownEnginesAndStatuses(t *testing.T) {
	task := NewSearchTask("t1", DefaultEngines, time.Now())

	task.Merge(&StatusReport{
		TaskID: "t1",
		Status: map[string]EngineStatus{"tineye": StatusCompleted, "bing": "weird"},
		Links:  map[string]string{"tineye": "https://x", "bing": "https://bing"},
	})

	require.Len(t, task.Engines, 3)
	assert.Equal(t, StatusPending, task.Engines["bing"])
	assert.Equal(t, map[string]string{"bing": "https://bing"}, task.Links)
}

func TestSearchTask_FailedCanStillComplete(t *testing.T) {
	task := NewSearchTask("t1", []string{"google"}, time.Now())

	task.Merge(report(map[string]EngineStatus{"google": StatusFailed}))
	assert.True(t, task.AllTerminal())
	assert.False(t, task.AllCompleted())

	task.Merge(report(map[string]EngineStatus{"google": StatusPending}))
	assert.Equal(t, StatusFailed, task.Engines["google"])

	task.Merge(report(map[string]EngineStatus{"google": StatusCompleted}))
	assert.True(t, task.AllCompleted())
}

func TestSearchTask_ArrivalOrderDoesNotMatter(t *testing.T) {
	orders := [][]string{
		{"google", "yandex", "bing"},
		{"bing", "google", "yandex"},
		{"yandex", "bing", "google"},
	}
	for _, order := range orders {
		task := NewSearchTask("t1", DefaultEngines, time.Now())
		for i, e := range order {
			require.False(t, task.AllCompleted())
			task.Merge(report(map[string]EngineStatus{e: StatusCompleted}))
			require.Equal(t, i+1, task.Completed())
		}
		assert.True(t, task.AllCompleted(), "order %v", order)
	}
}

func TestSearchTask_CloneIsDeep(t *testing.T) {
	task := NewSearchTask("t1", DefaultEngines, time.Now())
	c := task.Clone()
	c.Engines["google"] = StatusCompleted
	c.Links["google"] = "x"

	assert.Equal(t, StatusPending, task.Engines["google"])
	assert.Empty(t, task.Links)

	var nilTask *SearchTask
	assert.Nil(t, nilTask.Clone())
}

func TestSearchTask_EmptyEnginesNeverComplete(t *testing.T) {
	task := NewSearchTask("t1", nil, time.Now())
	assert.False(t, task.AllCompleted())
	assert.Zero(t, task.Progress())
}

func TestOffer_WeeklyPrice(t *testing.T) {
	week := Offer{ID: "w", Price: 4.99, Period: PeriodWeek, Currency: "USD"}
	year := Offer{ID: "y", Price: 52, Period: PeriodYear}

	assert.InDelta(t, 4.99, week.WeeklyPrice(), 1e-9)
	assert.InDelta(t, 1.0, year.WeeklyPrice(), 1e-9)
	assert.Equal(t, "4.99 USD", week.WeeklyDisplay())
	assert.Equal(t, "1.00", year.WeeklyDisplay())
}
