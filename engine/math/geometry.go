package math

// GenerateNormals assigns each triangle's face normal to its three vertices.
func GenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalized()

		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateTangents computes per-triangle tangents from positions and texture
// coordinates. Triangles with degenerate UVs keep a zero tangent.
func GenerateTangents(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		d1 := vertices[i1].Texcoord.Sub(vertices[i0].Texcoord)
		d2 := vertices[i2].Texcoord.Sub(vertices[i0].Texcoord)

		det := d1.X*d2.Y - d2.X*d1.Y
		if kabs(det) < K_FLOAT_EPSILON {
			continue
		}
		fc := 1 / det
		t := Vec3{
			fc * (d2.Y*edge1.X - d1.Y*edge2.X),
			fc * (d2.Y*edge1.Y - d1.Y*edge2.Y),
			fc * (d2.Y*edge1.Z - d1.Y*edge2.Z),
		}.Normalized()

		handedness := float32(1)
		if det < 0 {
			handedness = -1
		}
		tangent := Vec4{t.X, t.Y, t.Z, handedness}
		vertices[i0].Tangent = tangent
		vertices[i1].Tangent = tangent
		vertices[i2].Tangent = tangent
	}
}

// ComputeExtents returns the bounds of the vertex positions.
func ComputeExtents(vertices []Vertex3D) Extents3D {
	if len(vertices) == 0 {
		return Extents3D{}
	}
	ext := Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		ext.Min = ext.Min.Min(v.Position)
		ext.Max = ext.Max.Max(v.Position)
	}
	return ext
}

// Vertex3DEqual compares two vertices with a float tolerance.
func Vertex3DEqual(a, b Vertex3D) bool {
	return a.Position.Compare(b.Position, K_FLOAT_EPSILON) &&
		a.Normal.Compare(b.Normal, K_FLOAT_EPSILON) &&
		a.Texcoord.Compare(b.Texcoord, K_FLOAT_EPSILON) &&
		a.Colour.Compare(b.Colour, K_FLOAT_EPSILON) &&
		a.Tangent.Compare(b.Tangent, K_FLOAT_EPSILON)
}
