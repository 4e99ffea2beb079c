package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRichVersionWithoutCommitHash(t *testing.T) {
	prev := CommitHash
	t.Cleanup(func() { CommitHash = prev })

	CommitHash = ""
	require.Equal(t, Version(), RichVersion())
}

func TestRichVersionIncludesCommitHash(t *testing.T) {
	prev := CommitHash
	t.Cleanup(func() { CommitHash = prev })

	CommitHash = " abc123 \n"
	require.Equal(t, Version()+" commit_hash=abc123", RichVersion())
}
