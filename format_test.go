package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestFormatExpiry(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "unknown", formatExpiry(time.Time{}))
	})

	t.Run("future", func(t *testing.T) {
		result := formatExpiry(time.Now().Add(58 * time.Minute))
		assert.Contains(t, result, "UTC (in ")
		assert.Contains(t, result, "58m")
	})

	t.Run("past", func(t *testing.T) {
		result := formatExpiry(time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC))
		assert.Equal(t, "2020-01-01 12:00:00 UTC (expired)", result)
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"ID", "NAME", "DETAIL"}
	rows := [][]string{
		{"p-1", "North Orchard", ""},
		{"f-1", "Spring Survey", "2026-03-14"},
	}

	printTable(&buf, headers, rows)
	output := buf.String()

	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "North Orchard")
	assert.Contains(t, output, "2026-03-14")

	// Columns align: every NAME cell starts at the same offset.
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "NAME"), strings.Index(lines[1], "North Orchard"))

	// No padding after the last column.
	for _, line := range lines {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
}
