package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"Nil", nil, true},
		{"Empty String", "", true},
		{"String", "x", false},
		{"Zero", 0.0, true},
		{"Number", 3.5, false},
		{"False", false, true},
		{"Empty List", []any{}, true},
		{"List Of Empties", []any{"", nil, []any{""}}, true},
		{"Nested Value", []any{"", []any{"a"}}, false},
		{"String Slice", []string{"", "b"}, false},
		{"Empty Map", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmptyValue(tt.v))
		})
	}
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "", StringValue("null"))
	assert.Equal(t, "", StringValue(" undefined "))
	assert.Equal(t, "12.5", StringValue(12.5))
	assert.Equal(t, "a, b", StringValue([]any{"a", "", "b"}))
	assert.Equal(t, "true", StringValue(true))
}

func TestDisplayConfig_Roles(t *testing.T) {
	c := DisplayConfig{CoordinatesProp: "note.location", ColorProp: "note.color"}
	roles := c.Roles()
	assert.Len(t, roles, 2)
	assert.True(t, roles["note.location"])
	assert.False(t, roles[""])
}

func TestCameraState_IsZero(t *testing.T) {
	assert.True(t, CameraState{}.IsZero())
	z := 3.0
	assert.False(t, CameraState{Zoom: &z}.IsZero())
}
