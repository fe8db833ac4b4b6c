package sandbox

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/stax/pkg/scene"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource transforms scene-edit Lisp source before passing it
// to zygomys:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal),
//     avoiding global symbol registration for every keyword.
//  2. Kebab-case to underscore: set-position -> set_position, because
//     zygomys reads hyphens as subtraction.
//  3. ; line comments become // comments, the form zygomys accepts.
//
// All transformations respect string literal boundaries.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments.
		if b[i] == ';' {
			result = append(result, '/', '/')
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword", preserving :=.
		if b[i] == ':' && i+1 < len(b) {
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers, leaving minus operators alone.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isLetter(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Sexp types and argument helpers
// ---------------------------------------------------------------------------

// sexpVec3 wraps a scene.Vec3 so vectors can flow between builtins.
type sexpVec3 struct {
	vec scene.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %v %v %v)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// isKW checks if a Sexp is a preprocessed keyword string, returning the
// bare keyword name when it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a parsed mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// toFloat64 extracts a float64 from a SexpInt or SexpFloat.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a plain string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toFace converts a keyword or string to a scene.Face.
func toFace(s zygo.Sexp) (scene.Face, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return "", fmt.Errorf("expected face keyword: %w", err)
	}
	f := scene.Face(name)
	if !scene.ValidFaces[f] {
		return "", fmt.Errorf("invalid face %q, expected top/bottom/left/right/front/back/center", name)
	}
	return f, nil
}

// toKind converts a keyword or string to a scene.Kind.
func toKind(s zygo.Sexp) (scene.Kind, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return "", fmt.Errorf("expected kind keyword: %w", err)
	}
	k := scene.Kind(name)
	if !scene.ValidKinds[k] {
		return "", fmt.Errorf("invalid kind %q, expected box/sphere/cylinder/cone/plane", name)
	}
	return k, nil
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (scene.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return scene.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// sceneEnv owns the script's copy of the scene and allocates ids for
// objects the script creates, continuing past the highest existing
// suffix so script ids never collide with canonical ones.
type sceneEnv struct {
	sc     *scene.Scene
	nextID uint64
}

func newSceneEnv(sc *scene.Scene) *sceneEnv {
	se := &sceneEnv{sc: sc, nextID: 1}
	for id := range sc.Objects {
		if n, ok := scene.IDSuffix(id); ok && n >= se.nextID {
			se.nextID = n + 1
		}
	}
	return se
}

func (se *sceneEnv) get(s zygo.Sexp) (*scene.Object, error) {
	id, err := toString(s)
	if err != nil {
		return nil, err
	}
	obj, ok := se.sc.Objects[id]
	if !ok {
		return nil, fmt.Errorf("object %q not found", id)
	}
	return obj, nil
}

// dimParams collects the dimension keyword arguments shared by
// add-object and set-dimensions.
func dimParams(pa kwArgs) (width, height, depth, radius *float64, err error) {
	grab := func(name string) (*float64, error) {
		v, ok := pa.kw[name]
		if !ok {
			return nil, nil
		}
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &f, nil
	}
	if width, err = grab("width"); err != nil {
		return
	}
	if height, err = grab("height"); err != nil {
		return
	}
	if depth, err = grab("depth"); err != nil {
		return
	}
	radius, err = grab("radius")
	return
}

// registerBuiltins installs the scene-edit builtins into a zygomys
// environment. All of them operate on the provided scene copy; nothing
// outside it is reachable from script code.
func registerBuiltins(env *zygo.Zlisp, sc *scene.Scene) {
	se := newSceneEnv(sc)

	// -----------------------------------------------------------------------
	// (vec3 1 2 3), (vec3-x v), (vec3-y v), (vec3-z v)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v scene.Vec3
		var err error
		if v.X, err = toFloat64(args[0]); err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		if v.Y, err = toFloat64(args[1]); err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		if v.Z, err = toFloat64(args[2]); err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}
		return &sexpVec3{vec: v}, nil
	})

	for comp, pickFn := range map[string]func(scene.Vec3) float64{
		"vec3_x": func(v scene.Vec3) float64 { return v.X },
		"vec3_y": func(v scene.Vec3) float64 { return v.Y },
		"vec3_z": func(v scene.Vec3) float64 { return v.Z },
	} {
		pick := pickFn
		fname := comp
		env.AddFunction(fname, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a vec3 argument", fname)
			}
			v, err := toVec3(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fname, err)
			}
			return &zygo.SexpFloat{Val: pick(v)}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (object-ids) -> ["obj_1" "obj_2" ...] in insertion order
	// -----------------------------------------------------------------------
	env.AddFunction("object_ids", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		ids := se.sc.ObjectIDs()
		vals := make([]zygo.Sexp, len(ids))
		for i, id := range ids {
			vals[i] = &zygo.SexpStr{S: id}
		}
		return &zygo.SexpArray{Val: vals}, nil
	})

	// -----------------------------------------------------------------------
	// Read accessors: (object-position id) (object-kind id)
	// (object-name id) (object-color id)
	// -----------------------------------------------------------------------
	env.AddFunction("object_position", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("object-position requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("object-position: %w", err)
		}
		return &sexpVec3{vec: obj.Position}, nil
	})

	env.AddFunction("object_kind", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("object-kind requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("object-kind: %w", err)
		}
		return &zygo.SexpStr{S: string(obj.Kind)}, nil
	})

	env.AddFunction("object_name", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("object-name requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("object-name: %w", err)
		}
		return &zygo.SexpStr{S: obj.Name}, nil
	})

	env.AddFunction("object_color", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("object-color requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("object-color: %w", err)
		}
		return &zygo.SexpStr{S: obj.Color}, nil
	})

	// -----------------------------------------------------------------------
	// Mutators: (set-position id (vec3 ...)) (set-name id "s")
	// (set-color id "#rrggbb") (set-scale id (vec3 ...))
	// -----------------------------------------------------------------------
	env.AddFunction("set_position", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-position requires an object id and a vec3")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-position: %w", err)
		}
		v, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-position: %w", err)
		}
		obj.Position = v
		return zygo.SexpNull, nil
	})

	env.AddFunction("set_name", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-name requires an object id and a string")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-name: %w", err)
		}
		n, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-name: %w", err)
		}
		obj.Name = n
		return zygo.SexpNull, nil
	})

	env.AddFunction("set_color", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-color requires an object id and a color string")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-color: %w", err)
		}
		c, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-color: %w", err)
		}
		if !scene.ValidColor(c) {
			return zygo.SexpNull, fmt.Errorf("set-color: invalid color %q, expected #rrggbb hex", c)
		}
		obj.Color = c
		return zygo.SexpNull, nil
	})

	env.AddFunction("set_scale", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-scale requires an object id and a vec3")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-scale: %w", err)
		}
		v, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-scale: %w", err)
		}
		if err := scene.ApplyUpdate(obj, scene.UpdateParams{Scale: &v}); err != nil {
			return zygo.SexpNull, fmt.Errorf("set-scale: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (set-dimensions id :width 10 :radius 5 ...)
	// Fields the object's kind does not declare are ignored.
	// -----------------------------------------------------------------------
	env.AddFunction("set_dimensions", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("set-dimensions requires an object id")
		}
		obj, err := se.get(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-dimensions: %w", err)
		}
		w, h, d, r, err := dimParams(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-dimensions: %w", err)
		}
		up := scene.UpdateParams{Width: w, Height: h, Depth: d, Radius: r}
		if err := scene.ApplyUpdate(obj, up); err != nil {
			return zygo.SexpNull, fmt.Errorf("set-dimensions: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (add-object :kind :box :name "base" :width 200 :color "#cc0000"
	//             :position (vec3 0 0 0)) -> "obj_7"
	// -----------------------------------------------------------------------
	env.AddFunction("add_object", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		kv, ok := pa.kw["kind"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("add-object requires a :kind")
		}
		kind, err := toKind(kv)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("add-object: %w", err)
		}

		p := scene.AddParams{Kind: kind}
		if v, ok := pa.kw["name"]; ok {
			if p.Name, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("add-object: name: %w", err)
			}
		}
		if v, ok := pa.kw["position"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("add-object: position: %w", err)
			}
			p.Position = &vec
		}
		if v, ok := pa.kw["scale"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("add-object: scale: %w", err)
			}
			p.Scale = &vec
		}
		if v, ok := pa.kw["color"]; ok {
			c, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("add-object: color: %w", err)
			}
			p.Color = &c
		}
		if p.Width, p.Height, p.Depth, p.Radius, err = dimParams(pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("add-object: %w", err)
		}

		id := fmt.Sprintf("obj_%d", se.nextID)
		obj, err := scene.BuildObject(id, p)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("add-object: %w", err)
		}
		se.nextID++
		se.sc.Objects[id] = obj
		return &zygo.SexpStr{S: id}, nil
	})

	// -----------------------------------------------------------------------
	// (delete-object id) removes the object and every connection
	// referencing it.
	// -----------------------------------------------------------------------
	env.AddFunction("delete_object", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("delete-object requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("delete-object: %w", err)
		}
		delete(se.sc.Objects, obj.ID)
		kept := se.sc.Connections[:0]
		for _, c := range se.sc.Connections {
			if !c.References(obj.ID) {
				kept = append(kept, c)
			}
		}
		se.sc.Connections = kept
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (connect from-id :bottom to-id :top) -> new position of from
	// -----------------------------------------------------------------------
	env.AddFunction("connect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("connect requires from-id, face, to-id, face")
		}
		from, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		faceA, err := toFace(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		to, err := se.get(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		faceB, err := toFace(args[3])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}

		from.Position = scene.ResolveConnection(from, faceA, to, faceB)
		se.sc.Connections = append(se.sc.Connections, scene.Connection{
			FromID:   from.ID,
			FromFace: faceA,
			ToID:     to.ID,
			ToFace:   faceB,
		})
		return &sexpVec3{vec: from.Position}, nil
	})

	// -----------------------------------------------------------------------
	// Pure geometry: (half-extents id), (face-anchor id :top)
	// -----------------------------------------------------------------------
	env.AddFunction("half_extents", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("half-extents requires an object id")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("half-extents: %w", err)
		}
		return &sexpVec3{vec: scene.HalfExtents(obj)}, nil
	})

	env.AddFunction("face_anchor", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("face-anchor requires an object id and a face")
		}
		obj, err := se.get(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("face-anchor: %w", err)
		}
		f, err := toFace(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("face-anchor: %w", err)
		}
		return &sexpVec3{vec: scene.FaceAnchor(obj, f)}, nil
	})
}
