package math

type Vec2 struct {
	X, Y float32
}

type Vec3 struct {
	X, Y, Z float32
}

type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A rotation, stored as x, y, z, w. */
type Quaternion Vec4

/**
 * @brief Axis aligned bounds of a mesh.
 */
type Extents3D struct {
	Min Vec3
	Max Vec3
}

/**
 * @brief A single vertex as it is staged for upload.
 */
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
	Colour   Vec4
	/** @brief Tangent, w holds the handedness of the bitangent. */
	Tangent Vec4
}
