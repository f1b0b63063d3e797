package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Key(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"external id wins", Record{ExternalID: "W1", NationalID: "N1"}, "W1"},
		{"national id fallback", Record{NationalID: "N1"}, "national:N1"},
		{"no identifiers", Record{DisplayName: "Nobody"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Key())
		})
	}
}

func TestRecord_SplitName(t *testing.T) {
	tests := []struct {
		name       string
		display    string
		wantGiven  string
		wantFamily string
	}{
		{"empty", "", "Unknown", "Unknown"},
		{"single word", "Ahmed", "Unknown", "Ahmed"},
		{"two words", "Ahmed Hassan", "Ahmed", "Hassan"},
		{"many words", "Mona  Abdel Aziz", "Mona Abdel", "Aziz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			given, family := Record{DisplayName: tt.display}.SplitName()
			assert.Equal(t, tt.wantGiven, given)
			assert.Equal(t, tt.wantFamily, family)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("blocked")
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, s)

	_, err = ParseStatus("pending")
	assert.Error(t, err)
}
