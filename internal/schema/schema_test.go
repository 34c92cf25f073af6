package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFidelity(t *testing.T) {
	s, err := Build([]FieldDefinition{
		{Name: "title", Type: FieldTypeString},
		{Name: "price", Type: FieldTypeNumber},
	})
	require.NoError(t, err)

	require.Equal(t, "object", s.Type)
	require.False(t, s.AdditionalProperties)
	require.ElementsMatch(t, []string{"title", "price"}, s.Required)
	require.Equal(t, Property{Type: "string"}, s.Properties["title"])
	require.Equal(t, Property{Type: "number"}, s.Properties["price"])
}

func TestBuildRejectsUnsupportedType(t *testing.T) {
	_, err := Build([]FieldDefinition{{Name: "x", Type: "boolean"}})
	require.ErrorIs(t, err, ErrUnsupportedFieldType)
}

func TestBuildEmptyFieldList(t *testing.T) {
	s, err := Build(nil)
	require.NoError(t, err)
	require.Empty(t, s.Required)
	require.Empty(t, s.Properties)
}

func TestBuildDuplicateNamesLastWins(t *testing.T) {
	s, err := Build([]FieldDefinition{
		{Name: "v", Type: FieldTypeString},
		{Name: "v", Type: FieldTypeNumber},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"v"}, s.Required)
	require.Equal(t, Property{Type: "number"}, s.Properties["v"])
}

func TestFieldDefinitionValidate(t *testing.T) {
	cases := []struct {
		name  string
		field FieldDefinition
		want  error
	}{
		{"ok", FieldDefinition{Name: "title", Type: FieldTypeString}, nil},
		{"empty name", FieldDefinition{Name: "", Type: FieldTypeString}, ErrInvalidFieldName},
		{"long name", FieldDefinition{Name: string(make([]byte, 101)), Type: FieldTypeNumber}, ErrInvalidFieldName},
		{"bad type", FieldDefinition{Name: "flag", Type: "boolean"}, ErrUnsupportedFieldType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.field.Validate()
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.True(t, errors.Is(err, tc.want), "got %v", err)
			}
		})
	}
}
