package masterdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScale_Validate(t *testing.T) {
	lat := 91.0
	lon := 13.4

	assert.Error(t, Scale{}.Validate())
	assert.Error(t, Scale{ID: "S1", Latitude: &lat}.Validate())
	assert.NoError(t, Scale{ID: "S1", Longitude: &lon}.Validate())
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, IDs([]Scale{{ID: "b"}, {ID: "a"}}))
	assert.Empty(t, IDs(nil))
}
