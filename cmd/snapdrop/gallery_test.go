package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/snapdrop/internal/hostapi"
)

func TestSessionRows(t *testing.T) {
	at := hostapi.Time{Time: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}
	sessions := []hostapi.LoginSession{
		{UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", LoginAt: at, HashedIP: "0123456789abcdef"},
		{UserAgent: "", LoginAt: at, HashedIP: "fedcba9876543210"},
	}

	rows := sessionRows(sessions, "fedcba9876543210")
	require.Len(t, rows, 2)
	assert.Equal(t, "Linux (Firefox)", rows[0][1])
	assert.Equal(t, "0123456789...", rows[0][2])
	assert.Empty(t, rows[0][3])
	assert.Equal(t, "Unknown OS (Unknown Browser)", rows[1][1])
	assert.Equal(t, "current", rows[1][3])

	for _, row := range sessionRows(sessions, "") {
		assert.Empty(t, row[3], "no marker without a known address")
	}
	assert.Equal(t, "short", shortHash("short"))
}
