package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "1024", 1024, false},
		{"bytes B", "1024B", 1024, false},
		{"kibibytes Ki", "1Ki", 1024, false},
		{"kibibytes KiB", "1KiB", 1024, false},
		{"mebibytes MiB", "100MiB", 100 * 1024 * 1024, false},
		{"gibibytes Gi", "1Gi", 1024 * 1024 * 1024, false},
		{"kilobytes KB", "1KB", 1000, false},
		{"megabytes MB", "100MB", 100 * 1000 * 1000, false},
		{"case insensitive", "1gi", 1024 * 1024 * 1024, false},
		{"leading space", "  1Gi", 1024 * 1024 * 1024, false},
		{"space between", "1 Gi", 1024 * 1024 * 1024, false},
		{"float mebibytes", "1.5Mi", ByteSize(1.5 * 1024 * 1024), false},
		{"512KB chunk", "512Ki", 512 * 1024, false},
		{"empty string", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"invalid unit", "1Xi", 0, true},
		{"no number", "Gi", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("1Gi")))
	assert.Equal(t, ByteSize(1024*1024*1024), b)

	assert.Error(t, b.UnmarshalText([]byte("invalid")))
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "2.00KiB", (2 * KiB).String())
	assert.Equal(t, "100.00MiB", (100 * MiB).String())
	assert.Equal(t, "1.00GiB", (1 * GiB).String())
}

func TestByteSize_Constants(t *testing.T) {
	assert.EqualValues(t, 1024, KiB)
	assert.EqualValues(t, 1024*1024, MiB)
	assert.EqualValues(t, 1024*1024*1024, GiB)
	assert.EqualValues(t, 1000, KB)
	assert.EqualValues(t, 1000*1000, MB)
}
