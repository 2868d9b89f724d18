package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyHolderDefaultsWithoutFile(t *testing.T) {
	holder, err := newPolicyHolder(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultPolicy(), holder.Get())
}

func TestPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("archiving:\n  archive_after_months: 6\n  compress_after_months: 18\n  enable_compression: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archiving.yml"), body, 0o644))

	holder, err := newPolicyHolder(zap.NewNop(), dir)
	require.NoError(t, err)

	got := holder.Get()
	require.Equal(t, 6, got.ArchiveAfterMonths)
	require.Equal(t, 18, got.CompressAfterMonths)
	require.False(t, got.EnableCompression)
	require.Equal(t, 7, got.DeleteAfterYears)
	require.Equal(t, 1000, got.BatchSize)
}

func TestPolicyHolderEnvOverride(t *testing.T) {
	t.Setenv("SCHOLARA_ARCHIVING_BATCH_SIZE", "250")

	holder, err := newPolicyHolder(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 250, holder.Get().BatchSize)
}

func TestPolicyHolderRejectsInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	body := []byte("archiving:\n  archive_after_months: 24\n  compress_after_months: 12\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archiving.yml"), body, 0o644))

	_, err := newPolicyHolder(zap.NewNop(), dir)
	require.True(t, errors.Is(err, domain.ErrInvalidPolicy))
}
