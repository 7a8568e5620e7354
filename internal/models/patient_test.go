package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusWaiting, StatusCalled, true},
		{StatusCalled, StatusAttended, true},
		{StatusWaiting, StatusAttended, false},
		{StatusAttended, StatusWaiting, false},
		{StatusCalled, StatusWaiting, false},
		{StatusCalled, StatusCalled, false},
		{StatusAttended, StatusAttended, false},
		{Status("registering"), StatusCalled, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPatientEditable(t *testing.T) {
	assert.True(t, Patient{Status: StatusWaiting}.Editable())
	assert.True(t, Patient{Status: StatusCalled}.Editable())
	assert.False(t, Patient{Status: StatusAttended}.Editable())
}
