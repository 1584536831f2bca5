package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"present", "Present"},
		{"Present", "Present"},
		{"PRESENT", "Present"},
		{"มาเรียน", "Present"},
		{"late", "Late"},
		{"มาสาย", "Late"},
		{"absent", "Absent"},
		{"ขาด", "Absent"},
		{"leave", "Leave"},
		{"ลา", "Leave"},
		{"sick", "Sick"},
		{"ลาป่วย", "Sick"},
		{"  present ", "Present"},
		{"excused", "Excused"}, // unknown statuses title-case
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestNormalizeConverges(t *testing.T) {
	// Running the table twice must be a fixed point, or sanitize would keep
	// rewriting records forever.
	for _, raw := range []string{"present", "มาสาย", "excused", "ON TIME"} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestDeductible(t *testing.T) {
	assert.True(t, Deductible("Present"))
	assert.True(t, Deductible("late"))
	assert.True(t, Deductible("มาเรียน"))
	assert.True(t, Deductible("มาสาย"))
	assert.False(t, Deductible("Absent"))
	assert.False(t, Deductible("Leave"))
	assert.False(t, Deductible("Sick"))
	assert.False(t, Deductible(""))
}
