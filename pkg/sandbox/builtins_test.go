package sandbox

import (
	"testing"

	"github.com/chazu/stax/pkg/scene"
)

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "keyword becomes marked string",
			in:   `(add-object :kind :box)`,
			want: `(add_object "__kw_kind" "__kw_box")`,
		},
		{
			name: "kebab identifiers become underscores",
			in:   `(set-position id v)`,
			want: `(set_position id v)`,
		},
		{
			name: "minus operator untouched",
			in:   `(- 10 3)`,
			want: `(- 10 3)`,
		},
		{
			name: "subtraction after space untouched",
			in:   `(+ x - y)`,
			want: `(+ x - y)`,
		},
		{
			name: "assignment operator untouched",
			in:   `(def x := 5)`,
			want: `(def x := 5)`,
		},
		{
			name: "string literals protected",
			in:   `(set-name id "kebab-case :kw ; not a comment")`,
			want: `(set_name id "kebab-case :kw ; not a comment")`,
		},
		{
			name: "escaped quote inside string",
			in:   `(set-name id "say \"hi\" :ok")`,
			want: `(set_name id "say \"hi\" :ok")`,
		},
		{
			name: "semicolon comment becomes slash comment",
			in:   ";; move the base\n(set-position id v)",
			want: "// move the base\n(set_position id v)",
		},
		{
			name: "keyword with digits and hyphens",
			in:   `(f :max-depth-2)`,
			want: `(f "__kw_max-depth-2")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.in); got != tt.want {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseArgsSeparatesKeywords(t *testing.T) {
	b := testBridge()
	sc := seedScene(t)

	// Mixed positional and keyword args flow through set-dimensions.
	got, err := b.Execute(`(set-dimensions "obj_1" :width 40 :height 50)`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := scene.BoxDims{Width: 40, Height: 50, Depth: 100}
	if got.Objects["obj_1"].Dims != want {
		t.Errorf("dims = %v, want %v", got.Objects["obj_1"].Dims, want)
	}
}

func TestScriptAddObject(t *testing.T) {
	b := testBridge()
	sc := seedScene(t) // contains obj_1

	script := `(add-object :kind :cylinder :name "pillar" :radius 10.0 :height 100.0 :color "#336699")`
	got, err := b.Execute(script, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	obj, ok := got.Objects["obj_2"]
	if !ok {
		t.Fatalf("script object not allocated as obj_2; ids = %v", got.ObjectIDs())
	}
	if obj.Kind != scene.KindCylinder || obj.Name != "pillar" || obj.Color != "#336699" {
		t.Errorf("object = %+v", obj)
	}
	if obj.Dims != (scene.CylinderDims{Radius: 10, Height: 100}) {
		t.Errorf("dims = %v", obj.Dims)
	}
}

func TestScriptAddObjectDefaults(t *testing.T) {
	b := testBridge()

	got, err := b.Execute(`(add-object :kind :sphere)`, scene.NewScene())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	obj, ok := got.Objects["obj_1"]
	if !ok {
		t.Fatal("object not created in empty scene as obj_1")
	}
	if obj.Dims != (scene.SphereDims{Radius: 50}) {
		t.Errorf("default sphere dims = %v", obj.Dims)
	}
	if obj.Color != scene.DefaultColor {
		t.Errorf("default color = %q", obj.Color)
	}
}

func TestScriptAddObjectRequiresKind(t *testing.T) {
	b := testBridge()
	_, err := b.Execute(`(add-object :name "nameless")`, scene.NewScene())
	if err == nil {
		t.Fatal("add-object without :kind accepted")
	}
}

func TestScriptDeleteObjectCascades(t *testing.T) {
	b := testBridge()

	sc := scene.NewScene()
	for _, id := range []string{"obj_1", "obj_2"} {
		o, _ := scene.BuildObject(id, scene.AddParams{Kind: scene.KindBox})
		sc.Objects[id] = o
	}
	sc.Connections = append(sc.Connections, scene.Connection{
		FromID: "obj_2", FromFace: scene.FaceBottom,
		ToID: "obj_1", ToFace: scene.FaceTop,
	})

	got, err := b.Execute(`(delete-object "obj_1")`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, ok := got.Objects["obj_1"]; ok {
		t.Error("object survived delete")
	}
	if len(got.Connections) != 0 {
		t.Errorf("connections referencing deleted object survived: %v", got.Connections)
	}
}

func TestScriptConnect(t *testing.T) {
	b := testBridge()

	sc := scene.NewScene()
	base, _ := scene.BuildObject("obj_1", scene.AddParams{
		Kind: scene.KindBox, Width: f64(200), Height: f64(20), Depth: f64(100),
	})
	cyl, _ := scene.BuildObject("obj_2", scene.AddParams{
		Kind: scene.KindCylinder, Radius: f64(10), Height: f64(100),
	})
	sc.Objects[base.ID] = base
	sc.Objects[cyl.ID] = cyl

	got, err := b.Execute(`(connect "obj_2" :bottom "obj_1" :top)`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if pos := got.Objects["obj_2"].Position; pos != (scene.Vec3{X: 0, Y: 60, Z: 0}) {
		t.Errorf("resolved position = %v, want {0 60 0}", pos)
	}
	if len(got.Connections) != 1 {
		t.Fatalf("connections = %d, want 1", len(got.Connections))
	}
	want := scene.Connection{
		FromID: "obj_2", FromFace: scene.FaceBottom,
		ToID: "obj_1", ToFace: scene.FaceTop,
	}
	if got.Connections[0] != want {
		t.Errorf("connection = %v, want %v", got.Connections[0], want)
	}
}

func TestScriptGeometryAccessors(t *testing.T) {
	b := testBridge()
	sc := seedScene(t) // 100^3 box, half extents 50

	// Route the pure geometry result back through a mutation we can see.
	got, err := b.Execute(`(set-position "obj_1" (face-anchor "obj_1" :top))`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if pos := got.Objects["obj_1"].Position; pos != (scene.Vec3{Y: 50}) {
		t.Errorf("position = %v, want {0 50 0}", pos)
	}

	got, err = b.Execute(`(set-position "obj_1" (half-extents "obj_1"))`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if pos := got.Objects["obj_1"].Position; pos != (scene.Vec3{X: 50, Y: 50, Z: 50}) {
		t.Errorf("position = %v, want {50 50 50}", pos)
	}
}

func TestScriptVec3Components(t *testing.T) {
	b := testBridge()
	sc := seedScene(t)

	script := `(set-position "obj_1" (vec3 (vec3-x (vec3 7.0 8.0 9.0)) 0.0 0.0))`
	got, err := b.Execute(script, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if pos := got.Objects["obj_1"].Position; pos != (scene.Vec3{X: 7}) {
		t.Errorf("position = %v, want {7 0 0}", pos)
	}
}

func TestScriptUnknownObject(t *testing.T) {
	b := testBridge()
	_, err := b.Execute(`(set-name "obj_9" "ghost")`, scene.NewScene())
	if err == nil {
		t.Fatal("mutation of missing object accepted")
	}
}

func TestScriptIDsContinuePastExisting(t *testing.T) {
	b := testBridge()

	sc := scene.NewScene()
	o, _ := scene.BuildObject("obj_5", scene.AddParams{Kind: scene.KindBox})
	sc.Objects[o.ID] = o

	got, err := b.Execute(`(add-object :kind :box)`, sc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, ok := got.Objects["obj_6"]; !ok {
		t.Errorf("script id did not continue past obj_5; ids = %v", got.ObjectIDs())
	}
}

func f64(v float64) *float64 { return &v }
