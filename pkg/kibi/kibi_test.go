package kibi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "0 bytes", FormatBytes(0))
	require.Equal(t, "1023 bytes", FormatBytes(1023))
	require.Equal(t, "1 KB", FormatBytes(1024))
	require.Equal(t, "35 MB", FormatBytes(35*1024*1024))
	require.Equal(t, "1023 MB", FormatBytes(1023*1024*1024))
	require.Equal(t, "1 GB", FormatBytes(1024*1024*1024))
	require.Equal(t, "1 PB", FormatBytes(1024*1024*1024*1024*1024))
}

func TestParseBytes(t *testing.T) {
	goodParse := func(expected int64, s string) {
		val, err := ParseBytes(s)
		require.NoError(t, err)
		require.Equal(t, expected, val)
	}

	goodParse(0, "0")
	goodParse(12345, "12345")
	goodParse(50, "50 bytes")
	goodParse(50*1024, "50 KB")
	goodParse(50*1024, "50k")
	goodParse(256*1024*1024, "256 MB")
	goodParse(50*1024*1024*1024, "50 g")
	goodParse(50*1024*1024*1024*1024*1024, "50 pb")

	badParse := func(s string) {
		_, err := ParseBytes(s)
		require.Error(t, err)
	}

	badParse("")
	badParse("MB")
	badParse("50 pbz")
	badParse("50.1")
	badParse("-5")
}
