package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOrderedMap_SetKeepsPosition(t *testing.T) {
	m := NewOrderedMap("b", "1", "a", "2")
	m.Set("b", "3")
	m.Set("c", "4")

	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	assert.Equal(t, 3, m.Len())

	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestOrderedMap_UnmarshalYAML(t *testing.T) {
	var m OrderedMap

	err := yaml.Unmarshal([]byte("zone: us-east-1a\nInstanceId: i-1\nempty:\nrole: web\n"), &m)
	require.NoError(t, err)

	assert.Equal(t, []string{"zone", "InstanceId", "empty", "role"}, m.Keys())

	v, ok := m.Get("empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestOrderedMap_UnmarshalYAMLRejectsNested(t *testing.T) {
	var m OrderedMap

	err := yaml.Unmarshal([]byte("zone:\n  nested: true\n"), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"zone"`)

	err = yaml.Unmarshal([]byte("- a\n- b\n"), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a mapping")
}

func TestOrderedMap_MarshalYAML(t *testing.T) {
	m := NewOrderedMap("z", "1", "a", "2")

	out, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "z: \"1\"\na: \"2\"\n", string(out))
}

func TestNormalizeDimensions(t *testing.T) {
	tests := []struct {
		name string
		in   OrderedMap
		want []Dimension
	}{
		{
			name: "empty map",
			in:   OrderedMap{},
			want: []Dimension{},
		},
		{
			name: "drops empty values",
			in:   NewOrderedMap("InstanceId", "i-1", "Role", "", "Zone", "a"),
			want: []Dimension{
				{Name: "InstanceId", Value: "i-1"},
				{Name: "Zone", Value: "a"},
			},
		},
		{
			name: "all empty",
			in:   NewOrderedMap("Role", ""),
			want: []Dimension{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDimensions(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}
