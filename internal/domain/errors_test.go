package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped unauthenticated", fmt.Errorf("resolve: %w", ErrUnauthenticated), FailureUnauthenticated},
		{"upstream", fmt.Errorf("list datasets: %w", ErrUpstreamUnavailable), FailureUpstreamUnavailable},
		{"parse", ErrProposalParse, FailureProposalParse},
		{"no charts", ErrNoValidCharts, FailureNoValidCharts},
		{"partial", ErrPartialMaterialization, FailurePartialMaterialization},
		{"linking", fmt.Errorf("link: %w", ErrLinking), FailureLinking},
		{"other", errors.New("boom"), FailureInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureKind(tt.err))
		})
	}
}

func TestParseChartKind(t *testing.T) {
	assert.Equal(t, ChartKindTimeSeries, ParseChartKind("line"))
	assert.Equal(t, ChartKindBigNumber, ParseChartKind("Big-Number"))
	assert.Equal(t, ChartKindBar, ParseChartKind(" bar "))
	assert.False(t, ParseChartKind("sunburst").Valid())
	assert.True(t, ChartKindMap.Valid())
}

func TestSessionRecordExpired(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := NewSessionRecord("abc", start)

	assert.False(t, rec.Expired(start.Add(29*time.Minute), DefaultSessionTTL))
	assert.False(t, rec.Expired(start.Add(30*time.Minute), DefaultSessionTTL))
	assert.True(t, rec.Expired(start.Add(30*time.Minute+time.Second), DefaultSessionTTL))
}

func TestRecentTurns(t *testing.T) {
	rec := NewSessionRecord("abc", time.Now())
	for i := 0; i < 5; i++ {
		rec.Turns = append(rec.Turns, Turn{Request: fmt.Sprintf("r%d", i)})
	}

	recent := rec.RecentTurns(2)
	assert.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].Request)
	assert.Equal(t, "r4", recent[1].Request)
	assert.Len(t, rec.RecentTurns(10), 5)
	assert.Nil(t, rec.RecentTurns(0))
}
