package freqplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	plan := Match(868100000)
	require.NotNil(t, plan)
	assert.Equal(t, "EU868", plan.Region)
	assert.Len(t, plan.Frequencies, 8)

	plan = Match(903500000)
	require.NotNil(t, plan)
	assert.Equal(t, "US915", plan.Region)

	plan = Match(915200000)
	require.NotNil(t, plan)
	assert.Equal(t, "AU915", plan.Region)
}

func TestMatchUnknownFrequency(t *testing.T) {
	assert.Nil(t, Match(433175000))
}
