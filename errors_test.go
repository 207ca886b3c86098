package voxline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileError_Error(t *testing.T) {
	e := FileError{Message: "blank or corrupt file", Path: "/data/vol7.nrrd"}
	assert.Equal(t, "blank or corrupt file in '/data/vol7.nrrd'", e.Error())
}

func TestSummarizeFileErrors_Empty(t *testing.T) {
	assert.Equal(t, "", SummarizeFileErrors(nil))
}

func TestSummarizeFileErrors_Single(t *testing.T) {
	s := SummarizeFileErrors([]FileError{
		{Message: "not an NRRD file", Path: "a.nrrd"},
	})
	assert.Equal(t, "not an NRRD file in 'a.nrrd'", s)
}

func TestSummarizeFileErrors_CollapsesRepeatedMessages(t *testing.T) {
	s := SummarizeFileErrors([]FileError{
		{Message: "not an NRRD file", Path: "a.nrrd"},
		{Message: "blank or corrupt file", Path: "b.nrrd"},
		{Message: "not an NRRD file", Path: "c.nrrd"},
		{Message: "not an NRRD file", Path: "d.nrrd"},
	})
	want := "not an NRRD file in 'a.nrrd' and 2 other file(s).\n\n" +
		"blank or corrupt file in 'b.nrrd'"
	assert.Equal(t, want, s)
}

func TestSummarizeFileErrors_CapsDistinctMessages(t *testing.T) {
	var errs []FileError
	for i := 0; i < 7; i++ {
		errs = append(errs, FileError{
			Message: fmt.Sprintf("problem %d", i),
			Path:    fmt.Sprintf("vol%d.nrrd", i),
		})
	}

	s := SummarizeFileErrors(errs)
	lines := strings.Split(s, "\n\n")
	assert.Len(t, lines, 6)
	assert.Equal(t, "problem 0 in 'vol0.nrrd'", lines[0])
	assert.Equal(t, "problem 4 in 'vol4.nrrd'", lines[4])
	assert.Equal(t, "... and 2 other error(s).", lines[5])
}

func TestSummarizeFileErrors_PreservesFirstSeenOrder(t *testing.T) {
	s := SummarizeFileErrors([]FileError{
		{Message: "zeta", Path: "z.nrrd"},
		{Message: "alpha", Path: "a.nrrd"},
		{Message: "zeta", Path: "z2.nrrd"},
	})
	assert.True(t, strings.Index(s, "zeta") < strings.Index(s, "alpha"))
}

type captureReporter struct {
	batches [][]FileError
}

func (r *captureReporter) FileErrors(errs []FileError) {
	r.batches = append(r.batches, errs)
}

func TestLogReporter_IgnoresEmptyBatches(t *testing.T) {
	r := NewLogReporter(NoopLogger())
	assert.NotPanics(t, func() {
		r.FileErrors(nil)
		r.FileErrors([]FileError{{Message: "x", Path: "y"}})
	})
}
