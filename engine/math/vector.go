package math

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

func (v Vec2) Compare(o Vec2, tolerance float32) bool {
	return kabs(v.X-o.X) <= tolerance && kabs(v.Y-o.Y) <= tolerance
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float32 {
	return ksqrt(v.Dot(v))
}

// Normalized returns v scaled to unit length. The zero vector stays zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.MulScalar(1 / l)
}

// Lerp interpolates component-wise between v and o.
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	return Vec3{Lerp(v.X, o.X, t), Lerp(v.Y, o.Y, t), Lerp(v.Z, o.Z, t)}
}

func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}

func (v Vec3) Compare(o Vec3, tolerance float32) bool {
	return kabs(v.X-o.X) <= tolerance &&
		kabs(v.Y-o.Y) <= tolerance &&
		kabs(v.Z-o.Z) <= tolerance
}

func (v Vec4) Compare(o Vec4, tolerance float32) bool {
	return kabs(v.X-o.X) <= tolerance &&
		kabs(v.Y-o.Y) <= tolerance &&
		kabs(v.Z-o.Z) <= tolerance &&
		kabs(v.W-o.W) <= tolerance
}

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

func (q Quaternion) Dot(o Quaternion) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

func (q Quaternion) Normalize() Quaternion {
	n := ksqrt(q.Dot(q))
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

/**
 * @brief Spherical linear interpolation between two rotations along the
 * shorter arc.
 */
func (q Quaternion) Slerp(o Quaternion, t float32) Quaternion {
	v0, v1 := q.Normalize(), o.Normalize()
	dot := v0.Dot(v1)
	if dot < 0 {
		v1 = Quaternion{-v1.X, -v1.Y, -v1.Z, -v1.W}
		dot = -dot
	}

	// nearly parallel, fall back to a normalized lerp
	if dot > 0.9995 {
		return Quaternion{
			Lerp(v0.X, v1.X, t),
			Lerp(v0.Y, v1.Y, t),
			Lerp(v0.Z, v1.Z, t),
			Lerp(v0.W, v1.W, t),
		}.Normalize()
	}

	theta0 := kacos(dot)
	theta := theta0 * t
	s1 := ksin(theta) / ksin(theta0)
	s0 := kcos(theta) - dot*s1
	return Quaternion{
		v0.X*s0 + v1.X*s1,
		v0.Y*s0 + v1.Y*s1,
		v0.Z*s0 + v1.Z*s1,
		v0.W*s0 + v1.W*s1,
	}
}
