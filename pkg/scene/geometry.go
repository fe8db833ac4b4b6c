package scene

// Geometry helpers for face-to-face alignment. All functions here are
// pure: identical inputs always produce identical offsets, and nothing
// is mutated.

// HalfExtents returns the symmetric bounding half-size of the object
// along each axis, with the per-axis scale already applied.
//
// Spheres scale each axis of the radius independently; this is a scaling
// convention, not a true ellipsoid radius. Planes are flat and have zero
// vertical extent.
func HalfExtents(o *Object) Vec3 {
	switch d := o.Dims.(type) {
	case BoxDims:
		return Vec3{
			X: d.Width / 2 * o.Scale.X,
			Y: d.Height / 2 * o.Scale.Y,
			Z: d.Depth / 2 * o.Scale.Z,
		}
	case SphereDims:
		return Vec3{
			X: d.Radius * o.Scale.X,
			Y: d.Radius * o.Scale.Y,
			Z: d.Radius * o.Scale.Z,
		}
	case CylinderDims:
		return Vec3{
			X: d.Radius * o.Scale.X,
			Y: d.Height / 2 * o.Scale.Y,
			Z: d.Radius * o.Scale.Z,
		}
	case ConeDims:
		return Vec3{
			X: d.Radius * o.Scale.X,
			Y: d.Height / 2 * o.Scale.Y,
			Z: d.Radius * o.Scale.Z,
		}
	case PlaneDims:
		return Vec3{
			X: d.Width / 2 * o.Scale.X,
			Y: 0,
			Z: d.Depth / 2 * o.Scale.Z,
		}
	}
	return Vec3{}
}

// FaceAnchor returns the local-space offset from the object's position
// to the named face's contact point. It must be recomputed whenever the
// object's scale or dimensions change.
func FaceAnchor(o *Object, face Face) Vec3 {
	h := HalfExtents(o)
	switch face {
	case FaceTop:
		return Vec3{Y: +h.Y}
	case FaceBottom:
		return Vec3{Y: -h.Y}
	case FaceLeft:
		return Vec3{X: -h.X}
	case FaceRight:
		return Vec3{X: +h.X}
	case FaceFront:
		return Vec3{Z: +h.Z}
	case FaceBack:
		return Vec3{Z: -h.Z}
	case FaceCenter:
		return Vec3{}
	}
	return Vec3{}
}

// ResolveConnection computes the new world position for from such that
// from's faceA touches to's faceB. The target object is the fixed
// anchor; alignment is translation-only, no rotation is modeled.
func ResolveConnection(from *Object, faceA Face, to *Object, faceB Face) Vec3 {
	return to.Position.Add(FaceAnchor(to, faceB)).Sub(FaceAnchor(from, faceA))
}
