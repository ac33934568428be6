package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuestTypeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ordinal int
		want    string
	}{
		{1, "original"},
		{2, "plus_one"},
		{3, "plus_two"},
		{4, "plus_3"},
		{5, "plus_4"},
		{12, "plus_11"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, GuestTypeFor(tc.ordinal))
	}
}
