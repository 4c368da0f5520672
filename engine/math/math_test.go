package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-1, 0, 5))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestGenerateNormals(t *testing.T) {
	vertices := []Vertex3D{
		{Position: Vec3{0, 0, 0}, Texcoord: Vec2{0, 0}},
		{Position: Vec3{1, 0, 0}, Texcoord: Vec2{1, 0}},
		{Position: Vec3{0, 1, 0}, Texcoord: Vec2{0, 1}},
	}
	indices := []uint32{0, 1, 2}

	GenerateNormals(vertices, indices)
	GenerateTangents(vertices, indices)

	for _, v := range vertices {
		assert.True(t, v.Normal.Compare(Vec3{0, 0, 1}, 1e-6))
		assert.True(t, v.Tangent.Compare(Vec4{1, 0, 0, 1}, 1e-6))
	}
	ext := ComputeExtents(vertices)
	assert.Equal(t, Vec3{0, 0, 0}, ext.Min)
	assert.Equal(t, Vec3{1, 1, 0}, ext.Max)
}

func TestSlerp(t *testing.T) {
	from := NewQuatIdentity()
	// 90 degrees around z
	to := Quaternion{0, 0, 0.70710678, 0.70710678}

	assert.True(t, Vec4(from.Slerp(to, 0)).Compare(Vec4(from), 1e-5))
	assert.True(t, Vec4(from.Slerp(to, 1)).Compare(Vec4(to), 1e-5))
	half := from.Slerp(to, 0.5)
	assert.True(t, Vec4(half).Compare(Vec4{0, 0, 0.38268343, 0.92387953}, 1e-5))
}
