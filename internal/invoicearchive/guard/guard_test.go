package guard

import (
	"testing"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	policy := domain.DefaultPolicy()
	noCompression := policy
	noCompression.EnableCompression = false

	cases := []struct {
		name   string
		policy domain.Policy
		in     Input
		want   Action
	}{
		{"young", policy, Input{AgeMonths: 3}, ActionNone},
		{"at archive threshold", policy, Input{AgeMonths: 12, AgeYears: 1}, ActionNone},
		{"archive", policy, Input{AgeMonths: 13, AgeYears: 1}, ActionArchive},
		{"compress", policy, Input{AgeMonths: 25, AgeYears: 2}, ActionCompress},
		{"already compressed", policy, Input{AgeMonths: 25, AgeYears: 2, Compressed: true}, ActionNone},
		{"compression disabled", noCompression, Input{AgeMonths: 30, AgeYears: 2}, ActionArchive},
		{"delete trumps compress", policy, Input{AgeMonths: 100, AgeYears: 8}, ActionDelete},
		{"delete even when compressed", policy, Input{AgeMonths: 100, AgeYears: 8, Compressed: true}, ActionDelete},
		{"at delete threshold", policy, Input{AgeMonths: 95, AgeYears: 7, Compressed: true}, ActionNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.policy, tc.in))
		})
	}
}

func TestEnsureCanArchive(t *testing.T) {
	policy := domain.DefaultPolicy()

	assert.ErrorIs(t, EnsureCanArchive(policy, Input{AgeMonths: 12}), ErrPartitionTooYoung)
	assert.NoError(t, EnsureCanArchive(policy, Input{AgeMonths: 24}))
	assert.ErrorIs(t, EnsureCanArchive(policy, Input{AgeMonths: 25}), ErrPastArchiveStage)

	policy.EnableCompression = false
	assert.NoError(t, EnsureCanArchive(policy, Input{AgeMonths: 25}))
}

func TestEnsureCanCompress(t *testing.T) {
	policy := domain.DefaultPolicy()

	assert.ErrorIs(t, EnsureCanCompress(policy, Input{AgeMonths: 24}), ErrPartitionTooYoung)
	assert.ErrorIs(t, EnsureCanCompress(policy, Input{AgeMonths: 30, Compressed: true}), ErrAlreadyCompressed)
	assert.NoError(t, EnsureCanCompress(policy, Input{AgeMonths: 30}))

	policy.EnableCompression = false
	assert.ErrorIs(t, EnsureCanCompress(policy, Input{AgeMonths: 30}), ErrCompressionOff)
}
