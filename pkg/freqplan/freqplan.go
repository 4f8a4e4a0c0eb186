// Package freqplan holds the regional uplink channel plans used to bucket
// received frequencies into per-channel distributions.
package freqplan

// SpreadingFactors is the SF range tracked in KPI distributions.
var SpreadingFactors = []int{7, 8, 9, 10, 11, 12}

// Plan is an ordered list of uplink channel frequencies in Hz.
type Plan struct {
	Region      string
	Frequencies []uint64
}

var plans = []Plan{
	{
		Region: "EU868",
		Frequencies: []uint64{
			868100000, 868300000, 868500000, 867100000,
			867300000, 867500000, 867700000, 867900000,
		},
	},
	{
		Region: "US915",
		Frequencies: []uint64{
			902300000, 902500000, 902700000, 902900000,
			903100000, 903300000, 903500000, 903700000,
			903900000, 904100000, 904300000, 904500000,
			904700000, 904900000, 905100000, 905300000,
		},
	},
	{
		Region: "AU915",
		Frequencies: []uint64{
			915200000, 915400000, 915600000, 915800000,
			916000000, 916200000, 916400000, 916600000,
			916800000, 917000000, 917200000, 917400000,
			917600000, 917800000, 918000000, 918200000,
		},
	},
}

// Match returns the channel plan containing the given frequency, or nil if the
// frequency belongs to no known plan.
func Match(freq uint64) *Plan {
	for i := range plans {
		for _, f := range plans[i].Frequencies {
			if f == freq {
				return &plans[i]
			}
		}
	}
	return nil
}
