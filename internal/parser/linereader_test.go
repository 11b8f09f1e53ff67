package parser

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"
)

func readAllLines(lr *lineReader) (lines []string, nums []int) {
	for {
		line, num, ok := lr.next()
		if !ok {
			return lines, nums
		}
		lines = append(lines, line)
		nums = append(nums, num)
	}
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   []string
	}{
		{
			"normal lines",
			"aaa\nbbb\nccc\n",
			100,
			[]string{"aaa", "bbb", "ccc"},
		},
		{
			"skips oversized line",
			"short\n" + strings.Repeat("x", 50) + "\nafter\n",
			30,
			[]string{"short", "after"},
		},
		{
			"all lines oversized",
			strings.Repeat("a", 50) + "\n" +
				strings.Repeat("b", 50) + "\n",
			30,
			nil,
		},
		{
			"empty input",
			"",
			100,
			nil,
		},
		{
			"blank lines skipped",
			"aaa\n\n\nbbb\n",
			100,
			[]string{"aaa", "bbb"},
		},
		{
			"line without trailing newline",
			"aaa\nbbb",
			100,
			[]string{"aaa", "bbb"},
		},
		{
			"exact limit kept",
			strings.Repeat("x", 30) + "\n",
			30,
			[]string{strings.Repeat("x", 30)},
		},
		{
			"one over limit skipped",
			strings.Repeat("x", 31) + "\n",
			30,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(
				strings.NewReader(tt.input), tt.maxLen,
			)
			got, _ := readAllLines(lr)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineReaderLineNumbers(t *testing.T) {
	// Blank and oversized lines consume line numbers even though
	// next never yields them, so numbers stay physical.
	input := "aaa\n\n\nbbb\n" + strings.Repeat("x", 50) + "\nccc\n"
	lr := newLineReader(strings.NewReader(input), 30)

	lines, nums := readAllLines(lr)
	if want := []string{"aaa", "bbb", "ccc"}; !slices.Equal(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	if want := []int{1, 4, 6}; !slices.Equal(nums, want) {
		t.Errorf("line numbers = %v, want %v", nums, want)
	}
}

func TestLineReaderIOError(t *testing.T) {
	// A mid-file read failure ends iteration; lines read before the
	// failure are still delivered.
	r := io.MultiReader(
		strings.NewReader("aaa\nbbb\n"),
		iotest.ErrReader(errors.New("disk read failed")),
	)

	lr := newLineReader(r, 100)
	got, _ := readAllLines(lr)
	if want := []string{"aaa", "bbb"}; !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if line, _, ok := lr.next(); ok {
		t.Fatalf("next() after failure = %q, want iteration stopped", line)
	}
}
