package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/bplist"
)

func writePlist(t *testing.T, dir string, v bplist.Value) string {
	t.Helper()
	raw, err := bplist.Encode(v)
	require.NoError(t, err)
	path := filepath.Join(dir, "sample.bplist")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestRunDump_DecodesBplistAsJSON(t *testing.T) {
	dict := bplist.NewDict()
	d, _ := dict.Dict()
	d.Set("Port", bplist.Int(62078))

	path := writePlist(t, t.TempDir(), dict)

	cmd := dumpCmd
	require.NoError(t, runDump(cmd, []string{path}))
}

func TestRunConvert_BplistToXML(t *testing.T) {
	path := writePlist(t, t.TempDir(), bplist.String("hello"))

	convertTo = "xml"
	require.NoError(t, runConvert(convertCmd, []string{path}))
}

func TestRunConvert_UnknownDialect(t *testing.T) {
	path := writePlist(t, t.TempDir(), bplist.String("hello"))

	convertTo = "yaml"
	err := runConvert(convertCmd, []string{path})
	require.Error(t, err)
}
