// Package demo builds a small populated world used by `brp serve --demo`,
// the scenario harness and tests across the repository.
package demo

import (
	"github.com/roach88/brp/internal/world"
)

// Component and asset paths registered by New.
const (
	PhysicsPositionPath = "demo::physics::Position"
	UIPositionPath      = "demo::ui::Position"
	VelocityPath        = "demo::physics::Velocity"
	NamePath            = "demo::core::Name"
	HealthPath          = "demo::combat::Health"
	MarkerPath          = "demo::core::Marker"
	SecretPath          = "demo::core::Secret"
	ForeignPath         = "demo::ffi::Foreign"
	MaterialPath        = "demo::render::Material"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UIPosition shares its short name with Position.
type UIPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Name string

type Health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Marker has no equality support.
type Marker struct{}

// Secret is registered but not reflectable.
type Secret struct {
	Key string `json:"key"`
}

// Foreign is known to the world but has no serialization registration.
type Foreign struct {
	Ptr uintptr `json:"ptr"`
}

type Material struct {
	Color     string  `json:"color"`
	Roughness float64 `json:"roughness"`
}

// World is the demo world with the ids of everything it contains.
type World struct {
	*world.World

	PhysicsPosition world.ComponentID
	UIPosition      world.ComponentID
	Velocity        world.ComponentID
	Name            world.ComponentID
	Health          world.ComponentID
	Marker          world.ComponentID
	Secret          world.ComponentID
	Foreign         world.ComponentID
	Material        world.ComponentID

	// Player has Position, Velocity, Name and Health.
	Player world.Entity
	// Enemy has Position, Name and Health.
	Enemy world.Entity
	// Widget has UIPosition and Marker.
	Widget world.Entity
	// Vault has Name, Secret and Foreign.
	Vault world.Entity

	Steel world.Handle
}

// Types registers the demo types on w without spawning anything.
func Types(w *world.World) *World {
	return &World{
		World:           w,
		PhysicsPosition: world.RegisterComponent[Position](w, PhysicsPositionPath),
		UIPosition:      world.RegisterComponent[UIPosition](w, UIPositionPath),
		Velocity:        world.RegisterComponent[Velocity](w, VelocityPath),
		Name:            world.RegisterComponent[Name](w, NamePath),
		Health:          world.RegisterComponent[Health](w, HealthPath),
		Marker:          world.RegisterComponent[Marker](w, MarkerPath, world.WithoutEqual()),
		Secret:          world.RegisterComponent[Secret](w, SecretPath, world.Opaque()),
		Foreign:         world.RegisterComponent[Foreign](w, ForeignPath, world.Unregistered()),
		Material:        world.RegisterAsset[Material](w, MaterialPath),
	}
}

// New returns a populated demo world.
func New() *World {
	d := Types(world.New())
	w := d.World

	d.Player = spawn(w, map[world.ComponentID]any{
		d.PhysicsPosition: Position{X: 1, Y: 2},
		d.Velocity:        Velocity{X: 0.5, Y: 0},
		d.Name:            Name("player"),
		d.Health:          Health{Current: 10, Max: 10},
	})
	d.Enemy = spawn(w, map[world.ComponentID]any{
		d.PhysicsPosition: Position{X: 5, Y: 5},
		d.Name:            Name("enemy"),
		d.Health:          Health{Current: 3, Max: 8},
	})
	d.Widget = spawn(w, map[world.ComponentID]any{
		d.UIPosition: UIPosition{X: 10, Y: 20},
		d.Marker:     Marker{},
	})
	d.Vault = spawn(w, map[world.ComponentID]any{
		d.Name:    Name("vault"),
		d.Secret:  Secret{Key: "hunter2"},
		d.Foreign: Foreign{Ptr: 0xdead},
	})

	h, err := w.AddAsset(d.Material, Material{Color: "grey", Roughness: 0.4})
	if err != nil {
		panic(err)
	}
	d.Steel = h
	return d
}

func spawn(w *world.World, components map[world.ComponentID]any) world.Entity {
	e := w.Spawn()
	for id, v := range components {
		if err := w.Insert(e, id, v); err != nil {
			panic(err)
		}
	}
	return e
}
