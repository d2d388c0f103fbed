package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type framed struct {
	lines []string
	errs  []error
}

func (f *framed) collect(line string, err error) {
	if err != nil {
		f.errs = append(f.errs, err)
		return
	}
	f.lines = append(f.lines, line)
}

func TestLineBuffer_Framing(t *testing.T) {
	var f framed
	b := NewLineBuffer(200)

	b.Write([]byte("scan\r\n1,1.0\n\n2,0.5"), f.collect)
	assert.Equal(t, []string{"scan", "1,1.0"}, f.lines)
	assert.Empty(t, f.errs)

	b.Write([]byte("\n"), f.collect)
	assert.Equal(t, []string{"scan", "1,1.0", "2,0.5"}, f.lines)
}

func TestLineBuffer_TooLong(t *testing.T) {
	var f framed
	b := NewLineBuffer(16)

	long := strings.Repeat("x", 16)
	b.Write([]byte(long+"\nscan\n"), f.collect)

	assert.Len(t, f.errs, 1)
	assert.ErrorIs(t, f.errs[0], ErrLineTooLong)
	assert.Equal(t, []string{"scan"}, f.lines, "the next line is still received")
}

func TestLineBuffer_CapacityBoundary(t *testing.T) {
	var f framed
	b := NewLineBuffer(16)

	fits := strings.Repeat("y", 15)
	b.Write([]byte(fits+"\n"), f.collect)
	assert.Equal(t, []string{fits}, f.lines)
	assert.Empty(t, f.errs)
}

func TestLineBuffer_Reset(t *testing.T) {
	var f framed
	b := NewLineBuffer(16)
	b.Write([]byte("partial"), f.collect)
	b.Reset()
	b.Write([]byte("mppt\n"), f.collect)
	assert.Equal(t, []string{"mppt"}, f.lines)
}
