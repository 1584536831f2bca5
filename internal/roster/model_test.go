package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserNames(t *testing.T) {
	cases := []struct {
		name      string
		user      User
		wantFirst string
		wantLast  string
	}{
		{"structured fields win", User{FirstName: "Ann", LastName: "Lee", DisplayName: "Other Name"}, "Ann", "Lee"},
		{"display name split", User{DisplayName: "Ann Lee"}, "Ann", "Lee"},
		{"multi-word last name", User{DisplayName: "Ann van der Berg"}, "Ann", "van der Berg"},
		{"single word", User{DisplayName: "Ann"}, "Ann", ""},
		{"partial fallback", User{FirstName: "Ann", DisplayName: "X Lee"}, "Ann", "Lee"},
		{"nothing available", User{}, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, last := tc.user.Names()
			assert.Equal(t, tc.wantFirst, first)
			assert.Equal(t, tc.wantLast, last)
		})
	}
}

func TestRegistrationRemaining(t *testing.T) {
	r := Registration{TotalSessions: 10, UsedSessions: 3}
	if got := r.Remaining(); assert.NotNil(t, got) {
		assert.Equal(t, 7, *got)
	}

	over := Registration{TotalSessions: 5, UsedSessions: 9}
	if got := over.Remaining(); assert.NotNil(t, got) {
		assert.Equal(t, 0, *got)
	}

	assert.Nil(t, Registration{TotalSessions: 0}.Remaining())
	assert.True(t, Registration{}.Unlimited())
	assert.False(t, Registration{TotalSessions: 1}.Unlimited())
}
