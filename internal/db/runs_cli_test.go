package db

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/focusdrift/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsCLI_List(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	clock.AutoAdvance(time.Hour)
	db.Clock = clock

	older, err := db.RecordRun(testResult(t, "cropped", 20, 25, 30))
	require.NoError(t, err)
	_, err = db.RecordRun(testResult(t, "full", 20, 25, 30))
	require.NoError(t, err)
	newer, err := db.RecordRun(testResult(t, "cropped", 20, 25, 30))
	require.NoError(t, err)

	var out bytes.Buffer
	cli := NewRunsCLI(db, "cropped", &out)
	runs, err := cli.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].RunID)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "slope(um/C)")
	assert.Contains(t, lines[1], newer)
	assert.Contains(t, lines[1], "2024-03-01T12:00:00Z")
	assert.Contains(t, lines[2], older)

	out.Reset()
	require.NoError(t, NewRunsCLI(db, "", &out).Run([]string{"list", "1"}))
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestRunsCLI_ListEmpty(t *testing.T) {
	db := setupTestDB(t)

	var out bytes.Buffer
	require.NoError(t, NewRunsCLI(db, "", &out).Run(nil))
	assert.Equal(t, "No stored runs\n", out.String())
}

func TestRunsCLI_ShowAndDelete(t *testing.T) {
	db := setupTestDB(t)
	id, err := db.RecordRun(testResult(t, "cropped", 20, 25, 30))
	require.NoError(t, err)

	var out bytes.Buffer
	cli := NewRunsCLI(db, "", &out)
	require.NoError(t, cli.Run([]string{"show", id}))
	assert.Contains(t, out.String(), "Run "+id)
	assert.Contains(t, out.String(), "data set:     cropped")
	assert.Contains(t, out.String(), "±")
	assert.Contains(t, out.String(), "setpoint(C)")

	out.Reset()
	require.NoError(t, cli.Run([]string{"delete", id}))
	assert.Contains(t, out.String(), "Deleted run "+id)

	assert.ErrorIs(t, cli.Run([]string{"show", id}), ErrRunNotFound)
	assert.ErrorIs(t, cli.Run([]string{"delete", id}), ErrRunNotFound)
}

func TestRunsCLI_BadArgs(t *testing.T) {
	db := setupTestDB(t)
	cli := NewRunsCLI(db, "", &bytes.Buffer{})

	for _, args := range [][]string{
		{"show"},
		{"delete"},
		{"list", "many"},
		{"list", "-1"},
		{"frobnicate"},
	} {
		assert.Error(t, cli.Run(args), "%v", args)
	}
	assert.NoError(t, cli.Run([]string{"help"}))
}
