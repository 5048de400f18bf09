package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type channelInput struct {
	Name       string   `json:"name" validate:"required,min=2,max=10"`
	Visibility string   `json:"visibility" validate:"omitempty,oneof=public private"`
	Mentions   []string `json:"mentions" validate:"max=2"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	errs := Struct(channelInput{Visibility: "secret", Mentions: []string{"a", "b", "c"}})

	assert.True(t, errs.HasErrors())
	assert.Equal(t, "name is required", errs["name"])
	assert.Equal(t, "visibility must be one of: public, private", errs["visibility"])
	assert.Equal(t, "mentions allows at most 2 entries", errs["mentions"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	errs := Struct(channelInput{Name: "general", Visibility: "public"})
	assert.False(t, errs.HasErrors())
}

func TestStructLength(t *testing.T) {
	errs := Struct(channelInput{Name: "x"})
	assert.Equal(t, "name must be at least 2 characters", errs["name"])

	errs = Struct(channelInput{Name: "much-too-long-name"})
	assert.Equal(t, "name is too long", errs["name"])
}
