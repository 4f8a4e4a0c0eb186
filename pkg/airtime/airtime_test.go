package airtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		payload int
		sf      int
		want    float64
	}{
		{name: "12 bytes SF7", payload: 12, sf: 7, want: 41.216},
		{name: "20 bytes SF7", payload: 20, sf: 7, want: 56.576},
		{name: "51 bytes SF7", payload: 51, sf: 7, want: 102.656},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(DefaultParams(tt.payload, tt.sf))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestComputeLowDataRateOptimization(t *testing.T) {
	// At SF12/125kHz the symbol time is 32.768ms, above the 16ms threshold,
	// so auto LDRO must kick in.
	got, err := Compute(DefaultParams(12, 12))
	require.NoError(t, err)
	assert.InDelta(t, 1155.072, got, 0.001)
}

func TestComputeInvalidInputs(t *testing.T) {
	var calcErr *CalculationError

	_, err := Compute(DefaultParams(0, 7))
	require.Error(t, err)
	assert.ErrorAs(t, err, &calcErr)

	_, err = Compute(DefaultParams(-3, 7))
	require.Error(t, err)
	assert.ErrorAs(t, err, &calcErr)

	_, err = Compute(DefaultParams(20, 0))
	require.Error(t, err)
	assert.ErrorAs(t, err, &calcErr)
}

func TestComputeImplicitHeaderAndNoCRC(t *testing.T) {
	p := DefaultParams(12, 7)
	p.ExplicitHeader = false
	p.CRCEnabled = false

	got, err := Compute(p)
	require.NoError(t, err)

	// Dropping the explicit header and CRC shortens the payload section.
	withDefaults, err := Compute(DefaultParams(12, 7))
	require.NoError(t, err)
	assert.Less(t, got, withDefaults)
}
