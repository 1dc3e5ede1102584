package cliutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintTable_RendersHeadersAndRows(t *testing.T) {
	data := NewTableData("DEVICE ID", "SERIAL")
	data.AddRow("12", "ABCDEF")

	var buf bytes.Buffer
	PrintTable(&buf, data)

	out := buf.String()
	require.Contains(t, out, "DEVICE ID")
	require.Contains(t, out, "12")
	require.Contains(t, out, "ABCDEF")
}

func TestKeyValueTable_RendersPairs(t *testing.T) {
	var buf bytes.Buffer
	KeyValueTable(&buf, [][2]string{
		{"Host ID", "abc-123"},
		{"System BUID", "def-456"},
	})

	out := buf.String()
	require.Contains(t, out, "Host ID")
	require.Contains(t, out, "abc-123")
	require.Contains(t, out, "System BUID")
}

func TestTableData_HeadersAndRows(t *testing.T) {
	data := NewTableData("A", "B")
	data.AddRow("1", "2")
	data.AddRow("3", "4")

	require.Equal(t, []string{"A", "B"}, data.Headers())
	require.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, data.Rows())
}
