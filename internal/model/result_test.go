package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLabResult(t *testing.T) {
	orderID := uuid.New()
	res := NewLabResult(orderID, ResultSpec{
		TestCode:     "K",
		ResultValue:  "6.2",
		ResultUnit:   "mmol/L",
		AbnormalFlag: FlagCriticallyHigh,
		PerformedBy:  "tech-1",
	})

	assert.Equal(t, orderID, res.OrderID)
	assert.Equal(t, ResultStatusPreliminary, res.Status)
	assert.False(t, res.PerformedAt.IsZero(), "performed-at defaults to submission time")
	assert.Nil(t, res.VerifiedBy)
}

func TestNewLabResultExplicitPerformedAt(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	res := NewLabResult(uuid.New(), ResultSpec{TestCode: "NA", PerformedAt: &at})

	assert.Equal(t, at, res.PerformedAt)
}

func TestCritical(t *testing.T) {
	for flag, want := range map[AbnormalFlag]bool{
		FlagNormal:         false,
		FlagLow:            false,
		FlagHigh:           false,
		FlagAbnormal:       false,
		FlagCriticallyLow:  true,
		FlagCriticallyHigh: true,
	} {
		res := &LabResult{AbnormalFlag: flag}
		assert.Equal(t, want, res.Critical(), string(flag))
	}
}

func TestVerify(t *testing.T) {
	res := NewLabResult(uuid.New(), ResultSpec{TestCode: "CBC"})

	err := res.Verify("dr-house")
	require.NoError(t, err)

	assert.Equal(t, ResultStatusFinal, res.Status)
	require.NotNil(t, res.VerifiedBy)
	assert.Equal(t, "dr-house", *res.VerifiedBy)
	assert.NotNil(t, res.VerifiedAt)

	err = res.Verify("dr-wilson")
	assert.ErrorIs(t, err, ErrResultVerified)
	assert.Equal(t, "dr-house", *res.VerifiedBy)
}

func TestParseAbnormalFlag(t *testing.T) {
	got, ok := ParseAbnormalFlag("critically_low")
	assert.True(t, ok)
	assert.Equal(t, FlagCriticallyLow, got)

	_, ok = ParseAbnormalFlag("weird")
	assert.False(t, ok)
}
