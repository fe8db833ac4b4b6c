package scene

import (
	"fmt"
	"math"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

// DefaultColor is assigned to objects created without an explicit color.
const DefaultColor = "#888888"

// colorPattern matches a 6-hex-digit RGB color string.
var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Committer persists scene snapshots. Commit advances the version
// counter and returns the new version; the durable write itself may
// complete asynchronously and its failure is never surfaced here.
type Committer interface {
	Commit(sc *Scene, nextID uint64) uint64
}

// nopCommitter counts versions in memory without persisting anything.
type nopCommitter struct {
	version uint64
}

func (c *nopCommitter) Commit(*Scene, uint64) uint64 {
	c.version++
	return c.version
}

// Store is the sole authority over the scene graph. All mutation passes
// through it; a single mutex serializes read-validate-mutate-commit so
// no caller ever observes a partially mutated graph.
type Store struct {
	mu        sync.Mutex
	scene     *Scene
	nextID    uint64
	version   uint64
	committer Committer
	logger    *zap.Logger
}

// NewStore creates a store over the given initial scene. A nil scene
// starts empty. nextID and version come from the persisted record (1
// and 0 for a fresh store). A nil committer keeps versions in memory
// only.
func NewStore(initial *Scene, nextID, version uint64, committer Committer, logger *zap.Logger) *Store {
	if initial == nil {
		initial = NewScene()
	}
	if nextID < 1 {
		nextID = 1
	}
	if committer == nil {
		committer = &nopCommitter{version: version}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		scene:     initial,
		nextID:    nextID,
		version:   version,
		committer: committer,
		logger:    logger,
	}
}

// AddParams describes a new object. Nil optional fields take the
// documented per-kind defaults.
type AddParams struct {
	Kind     Kind
	Name     string
	Position *Vec3
	Scale    *Vec3
	Color    *string
	Width    *float64
	Height   *float64
	Depth    *float64
	Radius   *float64
}

// UpdateParams is a partial object payload. Nil fields are left
// untouched. Dimension fields apply only when the target object's kind
// declares them; mismatches are silently ignored so a single generic
// payload can address any kind.
type UpdateParams struct {
	Name     *string
	Position *Vec3
	Scale    *Vec3
	Color    *string
	Width    *float64
	Height   *float64
	Depth    *float64
	Radius   *float64
}

// Add validates and inserts a new object, returning it with a freshly
// allocated id. Nothing is mutated when validation fails.
func (s *Store) Add(p AddParams) (*Object, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := BuildObject(fmt.Sprintf("%s%d", idPrefix, s.nextID), p)
	if err != nil {
		return nil, 0, err
	}
	s.nextID++
	s.scene.Objects[obj.ID] = obj

	s.commit()
	return obj.Clone(), s.version, nil
}

// Get returns a copy of the object with the given id.
func (s *Store) Get(id string) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.scene.Objects[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return obj.Clone(), nil
}

// Update applies the non-nil fields of p to the object with the given
// id. The update is staged on a copy and swapped in only after every
// field validates, so a failed update leaves the graph untouched.
func (s *Store) Update(id string, p UpdateParams) (*Object, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.scene.Objects[id]
	if !ok {
		return nil, 0, &NotFoundError{ID: id}
	}

	obj := cur.Clone()
	if err := ApplyUpdate(obj, p); err != nil {
		return nil, 0, err
	}

	s.scene.Objects[id] = obj
	s.commit()
	return obj.Clone(), s.version, nil
}

// Delete removes the object and, atomically, every connection that
// references it on either endpoint.
func (s *Store) Delete(id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scene.Objects[id]; !ok {
		return 0, &NotFoundError{ID: id}
	}
	delete(s.scene.Objects, id)

	kept := s.scene.Connections[:0]
	for _, c := range s.scene.Connections {
		if !c.References(id) {
			kept = append(kept, c)
		}
	}
	s.scene.Connections = kept

	s.commit()
	return s.version, nil
}

// Connect snaps fromID's faceA onto toID's faceB: the source object's
// position is overwritten with the resolved alignment and a connection
// record is appended. Self-connection is permitted; it resolves to a
// self-offset delta.
func (s *Store) Connect(fromID string, faceA Face, toID string, faceB Face) (Vec3, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidFaces[faceA] {
		return Vec3{}, 0, &ValidationError{Field: "from_face", Reason: fmt.Sprintf("unknown face %q", faceA)}
	}
	if !ValidFaces[faceB] {
		return Vec3{}, 0, &ValidationError{Field: "to_face", Reason: fmt.Sprintf("unknown face %q", faceB)}
	}

	from, ok := s.scene.Objects[fromID]
	if !ok {
		return Vec3{}, 0, &NotFoundError{ID: fromID}
	}
	to, ok := s.scene.Objects[toID]
	if !ok {
		return Vec3{}, 0, &NotFoundError{ID: toID}
	}

	from.Position = ResolveConnection(from, faceA, to, faceB)
	s.scene.Connections = append(s.scene.Connections, Connection{
		FromID:   fromID,
		FromFace: faceA,
		ToID:     toID,
		ToFace:   faceB,
	})

	s.commit()
	return from.Position, s.version, nil
}

// Clear empties the scene and resets id allocation to 1.
func (s *Store) Clear() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scene = NewScene()
	s.nextID = 1

	s.commit()
	return s.version
}

// Snapshot returns a deep copy of the scene plus the current version.
// The copy never aliases internal state.
func (s *Store) Snapshot() (*Scene, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Clone(), s.version
}

// Replace swaps in a whole new scene, used by the sandbox bridge merge.
// The replacement is validated against the store invariants first; on
// failure the canonical scene is untouched. The id counter is bumped
// above any numeric suffix present in the replacement so future ids
// cannot collide.
func (s *Store) Replace(sc *Scene) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateScene(sc); err != nil {
		return 0, err
	}

	s.scene = sc.Clone()
	for id := range s.scene.Objects {
		if n, ok := IDSuffix(id); ok && n >= s.nextID {
			s.nextID = n + 1
		}
	}

	s.commit()
	return s.version, nil
}

// commit asks the committer for a new version. Caller must hold s.mu.
func (s *Store) commit() {
	s.version = s.committer.Commit(s.scene.Clone(), s.nextID)
	s.logger.Debug("scene committed",
		zap.Uint64("version", s.version),
		zap.Int("objects", len(s.scene.Objects)),
		zap.Int("connections", len(s.scene.Connections)))
}

// ValidColor reports whether c matches the #rrggbb hex format.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

// BuildObject assembles and validates a new object from p under the
// given id, applying the documented per-kind defaults for unspecified
// fields. It is used by Store.Add and by the sandbox builtins, which
// allocate ids in their own copy of the scene.
func BuildObject(id string, p AddParams) (*Object, error) {
	if !ValidKinds[p.Kind] {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", p.Kind)}
	}

	color := DefaultColor
	if p.Color != nil {
		color = *p.Color
	}
	if !colorPattern.MatchString(color) {
		return nil, &InvalidColorError{Color: color}
	}

	scale := Vec3{X: 1, Y: 1, Z: 1}
	if p.Scale != nil {
		scale = *p.Scale
	}
	if err := validateScale(scale); err != nil {
		return nil, err
	}

	dims, err := buildDims(p)
	if err != nil {
		return nil, err
	}

	position := Vec3{}
	if p.Position != nil {
		position = *p.Position
	}

	return &Object{
		ID:       id,
		Name:     p.Name,
		Kind:     p.Kind,
		Position: position,
		Scale:    scale,
		Color:    color,
		Dims:     dims,
	}, nil
}

// ApplyUpdate applies the non-nil fields of p to o in place. Dimension
// fields the kind does not declare are silently ignored. o is left
// unchanged when any applied field fails validation only if the caller
// staged the update on a copy, which Store.Update does.
func ApplyUpdate(o *Object, p UpdateParams) error {
	if p.Scale != nil {
		if err := validateScale(*p.Scale); err != nil {
			return err
		}
	}
	if p.Color != nil && !colorPattern.MatchString(*p.Color) {
		return &InvalidColorError{Color: *p.Color}
	}
	dims, err := applyDims(o.Kind, o.Dims, p)
	if err != nil {
		return err
	}

	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Position != nil {
		o.Position = *p.Position
	}
	if p.Scale != nil {
		o.Scale = *p.Scale
	}
	if p.Color != nil {
		o.Color = *p.Color
	}
	o.Dims = dims
	return nil
}

// dimField pairs a field name with its value for validation.
type dimField struct {
	name string
	val  float64
}

// validateScale checks that every scale component is finite and positive.
func validateScale(v Vec3) error {
	for _, c := range []dimField{{"scale.x", v.X}, {"scale.y", v.Y}, {"scale.z", v.Z}} {
		if err := validatePositive(c.name, c.val); err != nil {
			return err
		}
	}
	return nil
}

// validatePositive rejects non-finite and non-positive values.
func validatePositive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be finite"}
	}
	if v <= 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be positive, got %v", v)}
	}
	return nil
}

// Per-kind default dimensions for objects created without explicit ones.
const (
	defaultBoxSize        = 100
	defaultSphereRadius   = 50
	defaultCylinderRadius = 25
	defaultCylinderHeight = 100
	defaultPlaneSize      = 200
)

// buildDims assembles a validated Dims payload for a new object,
// filling unspecified fields with the per-kind defaults.
func buildDims(p AddParams) (Dims, error) {
	pick := func(v *float64, def float64) float64 {
		if v != nil {
			return *v
		}
		return def
	}

	var fields []dimField
	var d Dims

	switch p.Kind {
	case KindBox:
		b := BoxDims{
			Width:  pick(p.Width, defaultBoxSize),
			Height: pick(p.Height, defaultBoxSize),
			Depth:  pick(p.Depth, defaultBoxSize),
		}
		fields = []dimField{{"width", b.Width}, {"height", b.Height}, {"depth", b.Depth}}
		d = b
	case KindSphere:
		sp := SphereDims{Radius: pick(p.Radius, defaultSphereRadius)}
		fields = []dimField{{"radius", sp.Radius}}
		d = sp
	case KindCylinder:
		cy := CylinderDims{
			Radius: pick(p.Radius, defaultCylinderRadius),
			Height: pick(p.Height, defaultCylinderHeight),
		}
		fields = []dimField{{"radius", cy.Radius}, {"height", cy.Height}}
		d = cy
	case KindCone:
		co := ConeDims{
			Radius: pick(p.Radius, defaultCylinderRadius),
			Height: pick(p.Height, defaultCylinderHeight),
		}
		fields = []dimField{{"radius", co.Radius}, {"height", co.Height}}
		d = co
	case KindPlane:
		pl := PlaneDims{
			Width: pick(p.Width, defaultPlaneSize),
			Depth: pick(p.Depth, defaultPlaneSize),
		}
		fields = []dimField{{"width", pl.Width}, {"depth", pl.Depth}}
		d = pl
	default:
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", p.Kind)}
	}

	for _, f := range fields {
		if err := validatePositive(f.name, f.val); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// applyDims applies the dimension fields of an update payload that the
// object's kind declares, ignoring the rest. Applied values are
// validated; untouched values were validated at creation.
func applyDims(kind Kind, cur Dims, p UpdateParams) (Dims, error) {
	set := func(dst *float64, name string, v *float64) error {
		if v == nil {
			return nil
		}
		if err := validatePositive(name, *v); err != nil {
			return err
		}
		*dst = *v
		return nil
	}

	switch d := cur.(type) {
	case BoxDims:
		if err := set(&d.Width, "width", p.Width); err != nil {
			return nil, err
		}
		if err := set(&d.Height, "height", p.Height); err != nil {
			return nil, err
		}
		if err := set(&d.Depth, "depth", p.Depth); err != nil {
			return nil, err
		}
		return d, nil
	case SphereDims:
		if err := set(&d.Radius, "radius", p.Radius); err != nil {
			return nil, err
		}
		return d, nil
	case CylinderDims:
		if err := set(&d.Radius, "radius", p.Radius); err != nil {
			return nil, err
		}
		if err := set(&d.Height, "height", p.Height); err != nil {
			return nil, err
		}
		return d, nil
	case ConeDims:
		if err := set(&d.Radius, "radius", p.Radius); err != nil {
			return nil, err
		}
		if err := set(&d.Height, "height", p.Height); err != nil {
			return nil, err
		}
		return d, nil
	case PlaneDims:
		if err := set(&d.Width, "width", p.Width); err != nil {
			return nil, err
		}
		if err := set(&d.Depth, "depth", p.Depth); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("object of kind %q has no dims", kind)}
}

// ValidateScene checks the store invariants on a candidate scene:
// initialized collections, id/key agreement, known kinds and faces,
// valid colors, positive finite dimensions and scales, and connection
// endpoints that resolve to present objects.
func ValidateScene(sc *Scene) error {
	if sc == nil || sc.Objects == nil {
		return &ValidationError{Field: "objects", Reason: "missing object map"}
	}
	if sc.Connections == nil {
		return &ValidationError{Field: "connections", Reason: "missing connection list"}
	}

	for id, obj := range sc.Objects {
		if obj == nil {
			return &ValidationError{Field: "objects", Reason: fmt.Sprintf("nil object at key %q", id)}
		}
		if obj.ID != id {
			return &ValidationError{Field: "objects", Reason: fmt.Sprintf("key %q does not match object id %q", id, obj.ID)}
		}
		if !ValidKinds[obj.Kind] {
			return &ValidationError{Field: "kind", Reason: fmt.Sprintf("object %s: unknown kind %q", id, obj.Kind)}
		}
		if !colorPattern.MatchString(obj.Color) {
			return &InvalidColorError{Color: obj.Color}
		}
		if err := validateScale(obj.Scale); err != nil {
			return err
		}
		if err := validateDims(obj.Dims); err != nil {
			return err
		}
	}

	for _, c := range sc.Connections {
		if _, ok := sc.Objects[c.FromID]; !ok {
			return &ValidationError{Field: "connections", Reason: fmt.Sprintf("from endpoint %q does not exist", c.FromID)}
		}
		if _, ok := sc.Objects[c.ToID]; !ok {
			return &ValidationError{Field: "connections", Reason: fmt.Sprintf("to endpoint %q does not exist", c.ToID)}
		}
		if !ValidFaces[c.FromFace] {
			return &ValidationError{Field: "connections", Reason: fmt.Sprintf("unknown face %q", c.FromFace)}
		}
		if !ValidFaces[c.ToFace] {
			return &ValidationError{Field: "connections", Reason: fmt.Sprintf("unknown face %q", c.ToFace)}
		}
	}

	return nil
}

// validateDims checks every declared dimension of a payload.
func validateDims(d Dims) error {
	switch v := d.(type) {
	case BoxDims:
		for _, f := range []dimField{{"width", v.Width}, {"height", v.Height}, {"depth", v.Depth}} {
			if err := validatePositive(f.name, f.val); err != nil {
				return err
			}
		}
	case SphereDims:
		return validatePositive("radius", v.Radius)
	case CylinderDims:
		if err := validatePositive("radius", v.Radius); err != nil {
			return err
		}
		return validatePositive("height", v.Height)
	case ConeDims:
		if err := validatePositive("radius", v.Radius); err != nil {
			return err
		}
		return validatePositive("height", v.Height)
	case PlaneDims:
		if err := validatePositive("width", v.Width); err != nil {
			return err
		}
		return validatePositive("depth", v.Depth)
	default:
		return &ValidationError{Field: "dims", Reason: fmt.Sprintf("unknown dims type %T", d)}
	}
	return nil
}
