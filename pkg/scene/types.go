// Package scene defines the shared 3D scene graph: primitive solids plus
// directed face-to-face connection records, owned by a single Store.
package scene

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Vec3 represents a 3D vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of v and w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns the component-wise difference of v and w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Kind identifies a primitive solid shape.
type Kind string

const (
	KindBox      Kind = "box"
	KindSphere   Kind = "sphere"
	KindCylinder Kind = "cylinder"
	KindCone     Kind = "cone"
	KindPlane    Kind = "plane"
)

// ValidKinds is the set of accepted object kinds.
var ValidKinds = map[Kind]bool{
	KindBox:      true,
	KindSphere:   true,
	KindCylinder: true,
	KindCone:     true,
	KindPlane:    true,
}

// Face names an anchor point on an object's bounding box.
type Face string

const (
	FaceTop    Face = "top"
	FaceBottom Face = "bottom"
	FaceLeft   Face = "left"
	FaceRight  Face = "right"
	FaceFront  Face = "front"
	FaceBack   Face = "back"
	FaceCenter Face = "center"
)

// ValidFaces is the set of accepted face names.
var ValidFaces = map[Face]bool{
	FaceTop:    true,
	FaceBottom: true,
	FaceLeft:   true,
	FaceRight:  true,
	FaceFront:  true,
	FaceBack:   true,
	FaceCenter: true,
}

// Dims is the interface for kind-specific dimension payloads.
type Dims interface {
	dims() // marker method restricting implementations to this package
}

// BoxDims holds the dimensions of a rectangular solid.
type BoxDims struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

func (BoxDims) dims() {}

// SphereDims holds the dimensions of a sphere.
type SphereDims struct {
	Radius float64 `json:"radius"`
}

func (SphereDims) dims() {}

// CylinderDims holds the dimensions of a cylinder.
type CylinderDims struct {
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

func (CylinderDims) dims() {}

// ConeDims holds the dimensions of a cone.
type ConeDims struct {
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

func (ConeDims) dims() {}

// PlaneDims holds the dimensions of a flat plane. Planes have no
// vertical extent.
type PlaneDims struct {
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`
}

func (PlaneDims) dims() {}

// Object is a single primitive solid in the scene.
type Object struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Position Vec3   `json:"position"`
	Scale    Vec3   `json:"scale"`
	Color    string `json:"color"`
	Dims     Dims   `json:"-"`
}

// Clone returns a deep copy of the object. Dims implementations are
// value types, so copying the interface value copies the payload.
func (o *Object) Clone() *Object {
	c := *o
	return &c
}

// wireObject is the flat JSON shape objects travel in. Dimension fields
// are flattened next to the common attributes and dispatched on kind,
// so a single payload shape can describe any object.
type wireObject struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	Position Vec3     `json:"position"`
	Scale    Vec3     `json:"scale"`
	Color    string   `json:"color"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Depth    *float64 `json:"depth,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
}

func f64ptr(v float64) *float64 { return &v }

// MarshalJSON flattens the kind-specific dimensions into the wire shape.
func (o *Object) MarshalJSON() ([]byte, error) {
	w := wireObject{
		ID:       o.ID,
		Name:     o.Name,
		Kind:     o.Kind,
		Position: o.Position,
		Scale:    o.Scale,
		Color:    o.Color,
	}
	switch d := o.Dims.(type) {
	case BoxDims:
		w.Width, w.Height, w.Depth = f64ptr(d.Width), f64ptr(d.Height), f64ptr(d.Depth)
	case SphereDims:
		w.Radius = f64ptr(d.Radius)
	case CylinderDims:
		w.Radius, w.Height = f64ptr(d.Radius), f64ptr(d.Height)
	case ConeDims:
		w.Radius, w.Height = f64ptr(d.Radius), f64ptr(d.Height)
	case PlaneDims:
		w.Width, w.Depth = f64ptr(d.Width), f64ptr(d.Depth)
	default:
		return nil, fmt.Errorf("object %s: unknown dims type %T", o.ID, o.Dims)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reassembles the kind-specific dimension payload from the
// flat wire shape. Missing dimension fields default to zero; callers that
// require valid dimensions must validate afterwards.
func (o *Object) UnmarshalJSON(data []byte) error {
	var w wireObject
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.ID = w.ID
	o.Name = w.Name
	o.Kind = w.Kind
	o.Position = w.Position
	o.Scale = w.Scale
	o.Color = w.Color

	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}

	switch w.Kind {
	case KindBox:
		o.Dims = BoxDims{Width: deref(w.Width), Height: deref(w.Height), Depth: deref(w.Depth)}
	case KindSphere:
		o.Dims = SphereDims{Radius: deref(w.Radius)}
	case KindCylinder:
		o.Dims = CylinderDims{Radius: deref(w.Radius), Height: deref(w.Height)}
	case KindCone:
		o.Dims = ConeDims{Radius: deref(w.Radius), Height: deref(w.Height)}
	case KindPlane:
		o.Dims = PlaneDims{Width: deref(w.Width), Depth: deref(w.Depth)}
	default:
		return fmt.Errorf("unknown object kind %q", w.Kind)
	}
	return nil
}

// Connection records that FromID's FromFace was last aligned to ToID's
// ToFace. Connections are history, not live constraints: they do not
// re-apply when the target object moves.
type Connection struct {
	FromID   string `json:"from_id"`
	FromFace Face   `json:"from_face"`
	ToID     string `json:"to_id"`
	ToFace   Face   `json:"to_face"`
}

// References reports whether the connection names id on either endpoint.
func (c Connection) References(id string) bool {
	return c.FromID == id || c.ToID == id
}

// Scene is the complete scene graph: an id-keyed object map plus an
// ordered list of connections.
type Scene struct {
	Objects     map[string]*Object `json:"objects"`
	Connections []Connection       `json:"connections"`
}

// NewScene creates an empty scene with initialized collections.
func NewScene() *Scene {
	return &Scene{
		Objects:     make(map[string]*Object),
		Connections: []Connection{},
	}
}

// Clone returns a deep copy of the scene. Mutating the copy never
// affects the original.
func (s *Scene) Clone() *Scene {
	c := &Scene{
		Objects:     make(map[string]*Object, len(s.Objects)),
		Connections: make([]Connection, len(s.Connections)),
	}
	for id, o := range s.Objects {
		c.Objects[id] = o.Clone()
	}
	copy(c.Connections, s.Connections)
	return c
}

// ObjectIDs returns all object ids in insertion order. Ids carry a
// monotonic numeric suffix, so sorting by suffix recovers the order
// objects were created in.
func (s *Scene) ObjectIDs() []string {
	ids := make([]string, 0, len(s.Objects))
	for id := range s.Objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := IDSuffix(ids[i])
		nj, jok := IDSuffix(ids[j])
		if iok && jok {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// idPrefix is the prefix of every store-allocated object identifier.
const idPrefix = "obj_"

// IDSuffix extracts the numeric suffix of a store-allocated id.
func IDSuffix(id string) (uint64, bool) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(idPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
