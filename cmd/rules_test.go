package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	rf, err := parseRules([]byte(`
analysts:
  - name: Juana Gómez
    requiresInvoice: true
    plusPercentDefault: 10
insurers:
  - insurer: La Segunda
    days: 60
    toleranceDays: 5
`))
	require.NoError(t, err)
	require.Len(t, rf.Analysts, 1)
	assert.True(t, rf.Analysts[0].RequiresInvoice)
	assert.Equal(t, 10.0, rf.Analysts[0].PlusPercentDefault)
	require.Len(t, rf.Insurers, 1)
	assert.Equal(t, 65, rf.Insurers[0].Days+rf.Insurers[0].ToleranceDays)
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":       "analysts:\n  - name: A\n    requiresReceipt: true\n",
		"missing name":      "analysts:\n  - requiresInvoice: true\n",
		"percent too high":  "analysts:\n  - name: A\n    plusPercentDefault: 150\n",
		"negative days":     "insurers:\n  - insurer: X\n    days: -1\n",
		"duplicate analyst": "analysts:\n  - name: Ana\n  - name: ' ana '\n",
		"duplicate insurer": "insurers:\n  - insurer: X\n  - insurer: X\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseRules([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRulesKeepsAbsentSections(t *testing.T) {
	rf, err := parseRules([]byte("insurers:\n  - insurer: X\n    days: 30\n"))
	require.NoError(t, err)
	assert.Nil(t, rf.Analysts)
}
