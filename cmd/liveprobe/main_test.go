package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tilawah-live-api/pkg/liveclient"
)

func TestParsePositions(t *testing.T) {
	walk, err := parsePositions("2:5, 2:5 ,2:6")
	require.NoError(t, err)
	assert.Equal(t, []liveclient.Position{{Surah: 2, Ayah: 5}, {Surah: 2, Ayah: 5}, {Surah: 2, Ayah: 6}}, walk)

	_, err = parsePositions("2-5")
	assert.Error(t, err)
	_, err = parsePositions(" , ")
	assert.Error(t, err)
}
