package geom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapDelta(t *testing.T) {
	assert.Equal(t, 10.0, WrapDelta(10))
	assert.Equal(t, -20.0, WrapDelta(340))
	assert.Equal(t, 20.0, WrapDelta(-340))
	assert.Equal(t, 180.0, WrapDelta(180))
}

func TestNormalizeNear(t *testing.T) {
	assert.InDelta(t, -10.0, NormalizeNear(350, 0), 1e-9)
	assert.InDelta(t, 190.0, NormalizeNear(-170, 170), 1e-9)
	assert.InDelta(t, 180.0, NormalizeNear(180, 0), 1e-9)
	assert.InDelta(t, 45.0, NormalizeNear(45, 30), 1e-9)
}

func TestVec3_JSON(t *testing.T) {
	data, err := json.Marshal(Vec3{0.5, -0.25, 1})
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5,-0.25,1]`, string(data))

	var v Vec3
	require.NoError(t, json.Unmarshal([]byte(`[1,2,3]`), &v))
	assert.Equal(t, Vec3{1, 2, 3}, v)

	require.NoError(t, json.Unmarshal([]byte(`{"x":0.1,"y":0.2,"z":0.3}`), &v))
	assert.Equal(t, Vec3{0.1, 0.2, 0.3}, v)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
}

func TestVec2_Cross(t *testing.T) {
	assert.Equal(t, 1.0, Vec2{1, 0}.Cross(Vec2{0, 1}))
	assert.Equal(t, -1.0, Vec2{0, 1}.Cross(Vec2{1, 0}))
}
