package cmd

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/Aakash-1803/Nft-floor-price-cardano/floorbot"
	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := floorbot.Version
	originalCommitSHA := floorbot.CommitSHA
	originalBuildTime := floorbot.BuildTime

	t.Cleanup(
		func() {
			floorbot.Version = originalVersion
			floorbot.CommitSHA = originalCommitSHA
			floorbot.BuildTime = originalBuildTime
		},
	)

	floorbot.Version = "1.0.0"
	floorbot.CommitSHA = "abc123"
	floorbot.BuildTime = "2023-10-01T12:00:00Z"

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	t.Cleanup(
		func() {
			os.Stdout = orig
		},
	)

	// Capture the output
	versionCmd.Run(nil, nil)

	_ = w.Close()

	out, _ := io.ReadAll(r)
	output := string(out)
	t.Logf("output: %s", string(out))
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		floorbot.Version,
		floorbot.CommitSHA,
		floorbot.BuildTime,
	)
	assert.Equal(t, expected, output)
}
