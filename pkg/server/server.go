// Package server exposes the scene store and sandbox bridge as MCP
// tools over a pluggable transport. Handlers are thin: decode typed
// input, call the core, and return a typed result; typed core failures
// surface as tool errors.
package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/chazu/stax/pkg/sandbox"
	"github.com/chazu/stax/pkg/scene"
)

const (
	serverName    = "stax"
	serverVersion = "0.1.0"
)

// Server wires the scene store and sandbox bridge into an MCP server.
type Server struct {
	store  *scene.Store
	bridge *sandbox.Bridge
	logger *zap.Logger
	mcp    *mcp.Server
}

// New creates a server and registers every tool.
func New(store *scene.Store, bridge *sandbox.Bridge, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		bridge: bridge,
		logger: logger,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
	}
	s.register()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) register() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_object",
		Description: "Adds a primitive solid (box, sphere, cylinder, cone, plane) to the scene",
	}, s.handleAddObject)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_object",
		Description: "Returns a single scene object by id",
	}, s.handleGetObject)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_object",
		Description: "Applies a partial update to a scene object; omitted fields are left unchanged",
	}, s.handleUpdateObject)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_object",
		Description: "Deletes a scene object and every connection referencing it",
	}, s.handleDeleteObject)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "connect",
		Description: "Snaps one object's face onto another object's face and records the connection",
	}, s.handleConnect)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_scene",
		Description: "Removes every object and connection and resets id allocation",
	}, s.handleClearScene)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_scene",
		Description: "Returns the full scene graph and its version",
	}, s.handleGetScene)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_sandboxed",
		Description: "Runs a bulk-edit script in an isolated sandbox and merges the result",
	}, s.handleExecuteSandboxed)
}

// ObjectPayload is the flat wire shape of a scene object. Dimension
// fields are present only when the object's kind declares them.
type ObjectPayload struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Position scene.Vec3 `json:"position"`
	Scale    scene.Vec3 `json:"scale"`
	Color    string     `json:"color"`
	Width    *float64   `json:"width,omitempty"`
	Height   *float64   `json:"height,omitempty"`
	Depth    *float64   `json:"depth,omitempty"`
	Radius   *float64   `json:"radius,omitempty"`
}

// ConnectionPayload mirrors scene.Connection on the wire.
type ConnectionPayload struct {
	FromID   string `json:"from_id"`
	FromFace string `json:"from_face"`
	ToID     string `json:"to_id"`
	ToFace   string `json:"to_face"`
}

func toPayload(o *scene.Object) ObjectPayload {
	p := ObjectPayload{
		ID:       o.ID,
		Name:     o.Name,
		Kind:     string(o.Kind),
		Position: o.Position,
		Scale:    o.Scale,
		Color:    o.Color,
	}
	ptr := func(v float64) *float64 { return &v }
	switch d := o.Dims.(type) {
	case scene.BoxDims:
		p.Width, p.Height, p.Depth = ptr(d.Width), ptr(d.Height), ptr(d.Depth)
	case scene.SphereDims:
		p.Radius = ptr(d.Radius)
	case scene.CylinderDims:
		p.Radius, p.Height = ptr(d.Radius), ptr(d.Height)
	case scene.ConeDims:
		p.Radius, p.Height = ptr(d.Radius), ptr(d.Height)
	case scene.PlaneDims:
		p.Width, p.Depth = ptr(d.Width), ptr(d.Depth)
	}
	return p
}

func scenePayload(sc *scene.Scene) ([]ObjectPayload, []ConnectionPayload) {
	objects := make([]ObjectPayload, 0, len(sc.Objects))
	for _, id := range sc.ObjectIDs() {
		objects = append(objects, toPayload(sc.Objects[id]))
	}
	connections := make([]ConnectionPayload, 0, len(sc.Connections))
	for _, c := range sc.Connections {
		connections = append(connections, ConnectionPayload{
			FromID:   c.FromID,
			FromFace: string(c.FromFace),
			ToID:     c.ToID,
			ToFace:   string(c.ToFace),
		})
	}
	return objects, connections
}

// AddObjectInput describes a new object. Omitted fields take the
// documented per-kind defaults.
type AddObjectInput struct {
	Kind     string      `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Position *scene.Vec3 `json:"position,omitempty"`
	Scale    *scene.Vec3 `json:"scale,omitempty"`
	Color    *string     `json:"color,omitempty"`
	Width    *float64    `json:"width,omitempty"`
	Height   *float64    `json:"height,omitempty"`
	Depth    *float64    `json:"depth,omitempty"`
	Radius   *float64    `json:"radius,omitempty"`
}

// AddObjectResult returns the created object and the committed version.
type AddObjectResult struct {
	Object  ObjectPayload `json:"object"`
	Version uint64        `json:"version"`
}

func (s *Server) handleAddObject(ctx context.Context, _ *mcp.CallToolRequest, in AddObjectInput) (*mcp.CallToolResult, AddObjectResult, error) {
	obj, version, err := s.store.Add(scene.AddParams{
		Kind:     scene.Kind(in.Kind),
		Name:     in.Name,
		Position: in.Position,
		Scale:    in.Scale,
		Color:    in.Color,
		Width:    in.Width,
		Height:   in.Height,
		Depth:    in.Depth,
		Radius:   in.Radius,
	})
	if err != nil {
		return nil, AddObjectResult{}, err
	}
	return nil, AddObjectResult{Object: toPayload(obj), Version: version}, nil
}

// GetObjectInput names the object to fetch.
type GetObjectInput struct {
	ID string `json:"id"`
}

// GetObjectResult returns the requested object.
type GetObjectResult struct {
	Object ObjectPayload `json:"object"`
}

func (s *Server) handleGetObject(ctx context.Context, _ *mcp.CallToolRequest, in GetObjectInput) (*mcp.CallToolResult, GetObjectResult, error) {
	obj, err := s.store.Get(in.ID)
	if err != nil {
		return nil, GetObjectResult{}, err
	}
	return nil, GetObjectResult{Object: toPayload(obj)}, nil
}

// UpdateObjectInput is a partial object payload; omitted fields are
// left untouched and dimension fields the kind does not declare are
// silently ignored.
type UpdateObjectInput struct {
	ID       string      `json:"id"`
	Name     *string     `json:"name,omitempty"`
	Position *scene.Vec3 `json:"position,omitempty"`
	Scale    *scene.Vec3 `json:"scale,omitempty"`
	Color    *string     `json:"color,omitempty"`
	Width    *float64    `json:"width,omitempty"`
	Height   *float64    `json:"height,omitempty"`
	Depth    *float64    `json:"depth,omitempty"`
	Radius   *float64    `json:"radius,omitempty"`
}

// UpdateObjectResult returns the updated object and committed version.
type UpdateObjectResult struct {
	Object  ObjectPayload `json:"object"`
	Version uint64        `json:"version"`
}

func (s *Server) handleUpdateObject(ctx context.Context, _ *mcp.CallToolRequest, in UpdateObjectInput) (*mcp.CallToolResult, UpdateObjectResult, error) {
	obj, version, err := s.store.Update(in.ID, scene.UpdateParams{
		Name:     in.Name,
		Position: in.Position,
		Scale:    in.Scale,
		Color:    in.Color,
		Width:    in.Width,
		Height:   in.Height,
		Depth:    in.Depth,
		Radius:   in.Radius,
	})
	if err != nil {
		return nil, UpdateObjectResult{}, err
	}
	return nil, UpdateObjectResult{Object: toPayload(obj), Version: version}, nil
}

// DeleteObjectInput names the object to delete.
type DeleteObjectInput struct {
	ID string `json:"id"`
}

// DeleteObjectResult confirms the deletion.
type DeleteObjectResult struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
}

func (s *Server) handleDeleteObject(ctx context.Context, _ *mcp.CallToolRequest, in DeleteObjectInput) (*mcp.CallToolResult, DeleteObjectResult, error) {
	version, err := s.store.Delete(in.ID)
	if err != nil {
		return nil, DeleteObjectResult{}, err
	}
	return nil, DeleteObjectResult{ID: in.ID, Version: version}, nil
}

// ConnectInput aligns from_id's from_face onto to_id's to_face.
type ConnectInput struct {
	FromID   string `json:"from_id"`
	FromFace string `json:"from_face"`
	ToID     string `json:"to_id"`
	ToFace   string `json:"to_face"`
}

// ConnectResult returns the source object's new position.
type ConnectResult struct {
	Position scene.Vec3 `json:"position"`
	Version  uint64     `json:"version"`
}

func (s *Server) handleConnect(ctx context.Context, _ *mcp.CallToolRequest, in ConnectInput) (*mcp.CallToolResult, ConnectResult, error) {
	pos, version, err := s.store.Connect(in.FromID, scene.Face(in.FromFace), in.ToID, scene.Face(in.ToFace))
	if err != nil {
		return nil, ConnectResult{}, err
	}
	return nil, ConnectResult{Position: pos, Version: version}, nil
}

// ClearSceneInput takes no arguments.
type ClearSceneInput struct{}

// ClearSceneResult returns the committed version of the empty scene.
type ClearSceneResult struct {
	Version uint64 `json:"version"`
}

func (s *Server) handleClearScene(ctx context.Context, _ *mcp.CallToolRequest, _ ClearSceneInput) (*mcp.CallToolResult, ClearSceneResult, error) {
	return nil, ClearSceneResult{Version: s.store.Clear()}, nil
}

// GetSceneInput takes no arguments.
type GetSceneInput struct{}

// GetSceneResult returns the full scene graph snapshot.
type GetSceneResult struct {
	Objects     []ObjectPayload     `json:"objects"`
	Connections []ConnectionPayload `json:"connections"`
	Version     uint64              `json:"version"`
}

func (s *Server) handleGetScene(ctx context.Context, _ *mcp.CallToolRequest, _ GetSceneInput) (*mcp.CallToolResult, GetSceneResult, error) {
	sc, version := s.store.Snapshot()
	objects, connections := scenePayload(sc)
	return nil, GetSceneResult{Objects: objects, Connections: connections, Version: version}, nil
}

// ExecuteSandboxedInput carries the bulk-edit script.
type ExecuteSandboxedInput struct {
	Script string `json:"script"`
}

// ExecuteSandboxedResult returns the merged scene after a successful
// script run.
type ExecuteSandboxedResult struct {
	Objects     []ObjectPayload     `json:"objects"`
	Connections []ConnectionPayload `json:"connections"`
	Version     uint64              `json:"version"`
}

func (s *Server) handleExecuteSandboxed(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteSandboxedInput) (*mcp.CallToolResult, ExecuteSandboxedResult, error) {
	snap, _ := s.store.Snapshot()
	edited, err := s.bridge.Execute(in.Script, snap)
	if err != nil {
		return nil, ExecuteSandboxedResult{}, err
	}
	version, err := s.store.Replace(edited)
	if err != nil {
		return nil, ExecuteSandboxedResult{}, fmt.Errorf("merge rejected: %w", err)
	}
	objects, connections := scenePayload(edited)
	return nil, ExecuteSandboxedResult{Objects: objects, Connections: connections, Version: version}, nil
}
