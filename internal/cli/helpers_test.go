package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const validPlatformCUE = `
package test

platform: tiny: {
	description: "two-register test chip"
	flags: ["allow_standby"]
	programs: self_refresh: {
		suspend: [
			{op: "or", addr: 0x10, value: 0x1},
			{op: "wait", addr: 0x14, mask: 0x1, value: 0x1},
		]
		resume: [
			{op: "update", addr: 0x10, mask: 0xfffffffe, value: 0},
		]
	}
	sim: links: [{from: 0x10, from_mask: 0x1, to: 0x14, to_mask: 0x1}]
}
`

// writeCUE writes src as the only file of a fresh CUE package directory.
func writeCUE(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.cue"), []byte(src), 0644))
	return dir
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
