package fsck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvorsen/simplefs/layout"
	"github.com/halvorsen/simplefs/simplefs"
	"github.com/halvorsen/simplefs/simplefstest"
)

func TestFreshlyFormattedImageIsClean(t *testing.T) {
	fs, _, err := simplefstest.MountFresh(64, 64, simplefs.MountOptions{})
	require.NoError(t, err)

	report, err := fs.Fsck()
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestReportAfterMutationsIsStillClean(t *testing.T) {
	fs, root, err := simplefstest.MountFresh(64, 64, simplefs.MountOptions{})
	require.NoError(t, err)

	ino, err := fs.Create(root, "a", layout.ModeRegular|0o644, simplefs.Ownership{})
	require.NoError(t, err)
	a, err := fs.Iget(ino)
	require.NoError(t, err)
	require.NoError(t, fs.Link(a, root, "b"))
	_, err = fs.Mkdir(root, "sub", 0o755, simplefs.Ownership{})
	require.NoError(t, err)
	require.NoError(t, fs.Unlink(root, "b"))

	report, err := fs.Fsck()
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestReportToCSVIncludesHeader(t *testing.T) {
	fs, _, err := simplefstest.MountFresh(64, 64, simplefs.MountOptions{})
	require.NoError(t, err)

	report, err := fs.Fsck()
	require.NoError(t, err)

	text, err := report.ToCSV()
	require.NoError(t, err)
	assert.Contains(t, text, "invariant")
}
