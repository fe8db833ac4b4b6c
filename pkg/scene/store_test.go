package scene

import (
	"errors"
	"testing"
)

func newTestStore() *Store {
	return NewStore(nil, 1, 0, nil, nil)
}

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestAddAppliesDefaults(t *testing.T) {
	s := newTestStore()

	obj, version, err := s.Add(AddParams{Kind: KindBox})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if obj.ID != "obj_1" {
		t.Errorf("first id = %q, want obj_1", obj.ID)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if obj.Position != (Vec3{}) {
		t.Errorf("default position = %v, want origin", obj.Position)
	}
	if obj.Scale != (Vec3{X: 1, Y: 1, Z: 1}) {
		t.Errorf("default scale = %v, want unit", obj.Scale)
	}
	if obj.Color != DefaultColor {
		t.Errorf("default color = %q, want %q", obj.Color, DefaultColor)
	}
	if obj.Dims != (BoxDims{Width: 100, Height: 100, Depth: 100}) {
		t.Errorf("default box dims = %v", obj.Dims)
	}
}

func TestAddDefaultDimsPerKind(t *testing.T) {
	s := newTestStore()
	tests := []struct {
		kind Kind
		want Dims
	}{
		{KindSphere, SphereDims{Radius: 50}},
		{KindCylinder, CylinderDims{Radius: 25, Height: 100}},
		{KindCone, ConeDims{Radius: 25, Height: 100}},
		{KindPlane, PlaneDims{Width: 200, Depth: 200}},
	}
	for _, tt := range tests {
		obj, _, err := s.Add(AddParams{Kind: tt.kind})
		if err != nil {
			t.Fatalf("Add(%s) failed: %v", tt.kind, err)
		}
		if obj.Dims != tt.want {
			t.Errorf("%s default dims = %v, want %v", tt.kind, obj.Dims, tt.want)
		}
	}
}

func TestAddRejectsUnknownKind(t *testing.T) {
	s := newTestStore()
	_, _, err := s.Add(AddParams{Kind: Kind("torus")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Add(torus) err = %v, want ValidationError", err)
	}
	if _, err := s.Get("obj_1"); err == nil {
		t.Error("failed add still inserted an object")
	}
}

func TestAddRejectsInvalidColor(t *testing.T) {
	s := newTestStore()
	for _, c := range []string{"red", "#12345", "#12345g", "888888", "#1234567"} {
		_, _, err := s.Add(AddParams{Kind: KindBox, Color: str(c)})
		var cerr *InvalidColorError
		if !errors.As(err, &cerr) {
			t.Errorf("color %q: err = %v, want InvalidColorError", c, err)
		}
	}
	// Case-insensitive hex digits are fine.
	if _, _, err := s.Add(AddParams{Kind: KindBox, Color: str("#AaBbCc")}); err != nil {
		t.Errorf("color #AaBbCc rejected: %v", err)
	}
}

func TestAddRejectsNonPositiveDims(t *testing.T) {
	s := newTestStore()
	if _, _, err := s.Add(AddParams{Kind: KindBox, Width: f64(0)}); err == nil {
		t.Error("zero width accepted")
	}
	if _, _, err := s.Add(AddParams{Kind: KindSphere, Radius: f64(-3)}); err == nil {
		t.Error("negative radius accepted")
	}
	if _, _, err := s.Add(AddParams{Kind: KindBox, Scale: &Vec3{X: 1, Y: 0, Z: 1}}); err == nil {
		t.Error("zero scale component accepted")
	}
}

func TestIDsMonotonicAcrossDelete(t *testing.T) {
	s := newTestStore()
	a, _, _ := s.Add(AddParams{Kind: KindBox})
	b, _, _ := s.Add(AddParams{Kind: KindBox})
	if a.ID != "obj_1" || b.ID != "obj_2" {
		t.Fatalf("ids = %q, %q", a.ID, b.ID)
	}

	if _, err := s.Delete(b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	c, _, _ := s.Add(AddParams{Kind: KindBox})
	if c.ID != "obj_3" {
		t.Errorf("id after delete = %q, want obj_3 (ids are never reused)", c.ID)
	}
}

func TestClearResetsIDAllocation(t *testing.T) {
	s := newTestStore()
	s.Add(AddParams{Kind: KindBox})
	s.Add(AddParams{Kind: KindBox})

	s.Clear()
	sc, _ := s.Snapshot()
	if len(sc.Objects) != 0 || len(sc.Connections) != 0 {
		t.Fatalf("scene not empty after Clear: %d objects, %d connections",
			len(sc.Objects), len(sc.Connections))
	}

	obj, _, _ := s.Add(AddParams{Kind: KindBox})
	if obj.ID != "obj_1" {
		t.Errorf("id after Clear = %q, want obj_1", obj.ID)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := newTestStore()
	_, err := s.Get("obj_99")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Get err = %v, want NotFoundError", err)
	}
	if nf.ID != "obj_99" {
		t.Errorf("NotFoundError.ID = %q", nf.ID)
	}
}

func TestUpdatePartial(t *testing.T) {
	s := newTestStore()
	obj, _, _ := s.Add(AddParams{Kind: KindBox, Name: "base", Width: f64(200)})

	got, _, err := s.Update(obj.ID, UpdateParams{Position: &Vec3{X: 10}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Position != (Vec3{X: 10}) {
		t.Errorf("position = %v", got.Position)
	}
	if got.Name != "base" {
		t.Errorf("omitted name changed to %q", got.Name)
	}
	if got.Color != DefaultColor {
		t.Errorf("omitted color changed to %q", got.Color)
	}
	if got.Dims != (BoxDims{Width: 200, Height: 100, Depth: 100}) {
		t.Errorf("omitted dims changed: %v", got.Dims)
	}
}

func TestUpdateIgnoresMismatchedDims(t *testing.T) {
	s := newTestStore()
	obj, _, _ := s.Add(AddParams{Kind: KindBox})

	// radius means nothing to a box and is silently dropped.
	got, _, err := s.Update(obj.ID, UpdateParams{Radius: f64(42), Height: f64(77)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Dims != (BoxDims{Width: 100, Height: 77, Depth: 100}) {
		t.Errorf("dims = %v, want height applied and radius ignored", got.Dims)
	}
}

func TestUpdateFailureLeavesObjectUntouched(t *testing.T) {
	s := newTestStore()
	obj, _, _ := s.Add(AddParams{Kind: KindBox})

	_, _, err := s.Update(obj.ID, UpdateParams{Name: str("renamed"), Color: str("nope")})
	if err == nil {
		t.Fatal("invalid color accepted")
	}

	got, _ := s.Get(obj.ID)
	if got.Name != "" || got.Color != DefaultColor {
		t.Errorf("failed update partially applied: name=%q color=%q", got.Name, got.Color)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := newTestStore()
	_, _, err := s.Update("obj_1", UpdateParams{Name: str("x")})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Update err = %v, want NotFoundError", err)
	}
}

func TestDeleteCascadesConnections(t *testing.T) {
	s := newTestStore()
	a, _, _ := s.Add(AddParams{Kind: KindBox})
	b, _, _ := s.Add(AddParams{Kind: KindBox})
	c, _, _ := s.Add(AddParams{Kind: KindBox})
	s.Connect(b.ID, FaceBottom, a.ID, FaceTop)
	s.Connect(c.ID, FaceBottom, b.ID, FaceTop)

	if _, err := s.Delete(b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	sc, _ := s.Snapshot()
	if len(sc.Connections) != 0 {
		t.Errorf("connections referencing deleted object survived: %v", sc.Connections)
	}
	if _, ok := sc.Objects[a.ID]; !ok {
		t.Error("unrelated object deleted")
	}

	// Second delete of the same id reports not found.
	_, err := s.Delete(b.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("repeat Delete err = %v, want NotFoundError", err)
	}
}

func TestConnectMovesSourceObject(t *testing.T) {
	s := newTestStore()
	base, _, _ := s.Add(AddParams{
		Kind:  KindBox,
		Width: f64(200), Height: f64(20), Depth: f64(100),
	})
	cyl, _, _ := s.Add(AddParams{
		Kind:   KindCylinder,
		Radius: f64(10), Height: f64(100),
	})

	pos, _, err := s.Connect(cyl.ID, FaceBottom, base.ID, FaceTop)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if pos != (Vec3{X: 0, Y: 60, Z: 0}) {
		t.Fatalf("resolved position = %v, want {0 60 0}", pos)
	}

	got, _ := s.Get(cyl.ID)
	if got.Position != pos {
		t.Errorf("object position = %v, want %v", got.Position, pos)
	}
	sc, _ := s.Snapshot()
	if len(sc.Connections) != 1 {
		t.Fatalf("connections = %d, want 1", len(sc.Connections))
	}
	want := Connection{FromID: cyl.ID, FromFace: FaceBottom, ToID: base.ID, ToFace: FaceTop}
	if sc.Connections[0] != want {
		t.Errorf("connection = %v, want %v", sc.Connections[0], want)
	}
}

func TestConnectValidatesFacesBeforeLookup(t *testing.T) {
	s := newTestStore()
	a, _, _ := s.Add(AddParams{Kind: KindBox})

	_, _, err := s.Connect(a.ID, Face("diagonal"), a.ID, FaceTop)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("bad face err = %v, want ValidationError", err)
	}

	_, _, err = s.Connect(a.ID, FaceTop, "obj_9", FaceBottom)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("missing target err = %v, want NotFoundError", err)
	}
	sc, _ := s.Snapshot()
	if len(sc.Connections) != 0 {
		t.Error("failed connect appended a connection")
	}
}

func TestConnectSelf(t *testing.T) {
	s := newTestStore()
	a, _, _ := s.Add(AddParams{Kind: KindBox}) // 100^3, half extents 50

	pos, _, err := s.Connect(a.ID, FaceBottom, a.ID, FaceTop)
	if err != nil {
		t.Fatalf("self connect failed: %v", err)
	}
	// anchor(top) - anchor(bottom) = {0, 100, 0} above its own origin
	if pos != (Vec3{Y: 100}) {
		t.Errorf("self connect position = %v, want {0 100 0}", pos)
	}
}

func TestVersionAdvancesPerMutation(t *testing.T) {
	s := newTestStore()
	_, v1, _ := s.Add(AddParams{Kind: KindBox})
	_, v2, _ := s.Add(AddParams{Kind: KindBox})
	if v1 != 1 || v2 != 2 {
		t.Fatalf("versions = %d, %d", v1, v2)
	}

	// Failed mutations do not advance the version.
	s.Add(AddParams{Kind: Kind("bad")})
	_, v := s.Snapshot()
	if v != 2 {
		t.Errorf("version after failed add = %d, want 2", v)
	}

	v3, _ := s.Delete("obj_1")
	if v3 != 3 {
		t.Errorf("version after delete = %d, want 3", v3)
	}
	if v4 := s.Clear(); v4 != 4 {
		t.Errorf("version after clear = %d, want 4", v4)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestStore()
	obj, _, _ := s.Add(AddParams{Kind: KindBox})

	sc, _ := s.Snapshot()
	sc.Objects[obj.ID].Name = "mutated"
	sc.Connections = append(sc.Connections, Connection{FromID: "x", ToID: "y"})

	got, _ := s.Get(obj.ID)
	if got.Name == "mutated" {
		t.Error("snapshot aliases store state")
	}
}

func TestReplaceValidatesAndBumpsCounter(t *testing.T) {
	s := newTestStore()
	s.Add(AddParams{Kind: KindBox})

	bad := NewScene()
	bad.Connections = append(bad.Connections, Connection{
		FromID: "obj_1", FromFace: FaceTop, ToID: "obj_2", ToFace: FaceBottom,
	})
	if _, err := s.Replace(bad); err == nil {
		t.Fatal("Replace accepted dangling connection")
	}

	good := NewScene()
	o, err := BuildObject("obj_7", AddParams{Kind: KindSphere})
	if err != nil {
		t.Fatalf("BuildObject failed: %v", err)
	}
	good.Objects[o.ID] = o
	if _, err := s.Replace(good); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	next, _, _ := s.Add(AddParams{Kind: KindBox})
	if next.ID != "obj_8" {
		t.Errorf("id after replace = %q, want obj_8", next.ID)
	}
}

func TestValidateScene(t *testing.T) {
	sc := NewScene()
	o, _ := BuildObject("obj_1", AddParams{Kind: KindBox})
	sc.Objects[o.ID] = o
	if err := ValidateScene(sc); err != nil {
		t.Fatalf("valid scene rejected: %v", err)
	}

	sc.Objects["obj_2"] = o // key does not match object id
	if err := ValidateScene(sc); err == nil {
		t.Error("key/id mismatch accepted")
	}
	delete(sc.Objects, "obj_2")

	o.Color = "bad"
	if err := ValidateScene(sc); err == nil {
		t.Error("invalid color accepted")
	}
	o.Color = DefaultColor

	if err := ValidateScene(&Scene{Connections: []Connection{}}); err == nil {
		t.Error("nil object map accepted")
	}
}
