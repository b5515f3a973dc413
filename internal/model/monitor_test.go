package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchSummary_Add(t *testing.T) {
	s := &BatchSummary{}

	s.Add(CheckResult{ExternalKey: "a", Success: true})
	s.Add(CheckResult{ExternalKey: "b", Success: true, HasNewData: true, EscalationRequired: true})
	s.Add(CheckResult{ExternalKey: "c", Err: errors.New("boom")})
	s.Add(CheckResult{ExternalKey: "d"}) // failed without an error value

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.WithNewData)
	assert.Equal(t, 1, s.WithEscalation)

	assert.Len(t, s.Errors, 2)
	assert.Equal(t, "boom", s.Errors[0].Message)
	assert.Equal(t, "unknown error", s.Errors[1].Message)
}

func TestBatchSummary_ErrorListIsCapped(t *testing.T) {
	s := &BatchSummary{}
	for i := 0; i < MaxSummaryErrors+25; i++ {
		s.Add(CheckResult{
			ExternalKey: fmt.Sprintf("case-%d", i),
			Err:         errors.New("down"),
		})
	}

	assert.Equal(t, MaxSummaryErrors+25, s.Failed)
	assert.Len(t, s.Errors, MaxSummaryErrors)
}

func TestBatchSummary_SuccessRate(t *testing.T) {
	empty := &BatchSummary{}
	assert.Equal(t, 1.0, empty.SuccessRate())

	s := &BatchSummary{Total: 4, Successful: 3}
	assert.InDelta(t, 0.75, s.SuccessRate(), 0.001)
}
