package shadow

import "fmt"

// ValueType determines how a cell is serialised and how deltas are decoded.
type ValueType int

// Supported value types.
const (
	TypeUint32 ValueType = iota + 1
	TypeBool
	TypeFloat32
)

// String returns the name of the value type.
func (t ValueType) String() string {
	switch t {
	case TypeUint32:
		return "uint32"
	case TypeBool:
		return "bool"
	case TypeFloat32:
		return "float32"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Cell is a typed reference to application-owned storage.
//
// Cells are built with Uint32Cell, BoolCell or Float32Cell and are cheap to
// copy; every copy refers to the same storage. The zero Cell is invalid.
type Cell struct {
	typ ValueType
	u32 *uint32
	b   *bool
	f32 *float32
}

// Uint32Cell returns a cell backed by p.
func Uint32Cell(p *uint32) Cell {
	return Cell{typ: TypeUint32, u32: p}
}

// BoolCell returns a cell backed by p.
func BoolCell(p *bool) Cell {
	return Cell{typ: TypeBool, b: p}
}

// Float32Cell returns a cell backed by p.
func Float32Cell(p *float32) Cell {
	return Cell{typ: TypeFloat32, f32: p}
}

// Type returns the value type of the cell.
func (c Cell) Type() ValueType {
	return c.typ
}

// Valid reports whether the cell has storage behind it.
func (c Cell) Valid() bool {
	switch c.typ {
	case TypeUint32:
		return c.u32 != nil
	case TypeBool:
		return c.b != nil
	case TypeFloat32:
		return c.f32 != nil
	default:
		return false
	}
}

// Uint32 returns the current value of a TypeUint32 cell.
// It panics for other types.
func (c Cell) Uint32() uint32 {
	c.mustBe(TypeUint32)
	return *c.u32
}

// Bool returns the current value of a TypeBool cell.
// It panics for other types.
func (c Cell) Bool() bool {
	c.mustBe(TypeBool)
	return *c.b
}

// Float32 returns the current value of a TypeFloat32 cell.
// It panics for other types.
func (c Cell) Float32() float32 {
	c.mustBe(TypeFloat32)
	return *c.f32
}

// SetUint32 writes v into a TypeUint32 cell.
func (c Cell) SetUint32(v uint32) {
	c.mustBe(TypeUint32)
	*c.u32 = v
}

// SetBool writes v into a TypeBool cell.
func (c Cell) SetBool(v bool) {
	c.mustBe(TypeBool)
	*c.b = v
}

// SetFloat32 writes v into a TypeFloat32 cell.
func (c Cell) SetFloat32(v float32) {
	c.mustBe(TypeFloat32)
	*c.f32 = v
}

// Value returns the current value boxed as any.
// Intended for observers (journal, telemetry), not the report hot path.
func (c Cell) Value() any {
	switch c.typ {
	case TypeUint32:
		return *c.u32
	case TypeBool:
		return *c.b
	case TypeFloat32:
		return *c.f32
	default:
		return nil
	}
}

func (c Cell) mustBe(t ValueType) {
	if c.typ != t {
		panic(fmt.Sprintf("shadow: %s cell accessed as %s", c.typ, t))
	}
}
