package driver

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Indirect record sizes in bytes. Records are tightly packed little-endian
// uint32 fields and must match these layouts byte for byte.
const (
	DrawArgsSize        = 16
	DrawIndexedArgsSize = 20
	DispatchArgsSize    = 12
)

// ErrShortRecord is returned when decoding from a slice that is smaller
// than the record.
var ErrShortRecord = errors.New("driver: indirect record truncated")

// DrawArgs is the non-indexed draw record.
//
// Layout (16 bytes):
//
//	0  NumVertices   uint32
//	4  NumInstances  uint32
//	8  FirstVertex   uint32
//	12 FirstInstance uint32
type DrawArgs struct {
	NumVertices   uint32
	NumInstances  uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexedArgs is the indexed draw record.
//
// Layout (20 bytes):
//
//	0  NumIndices    uint32
//	4  NumInstances  uint32
//	8  FirstIndex    uint32
//	12 VertexOffset  int32
//	16 FirstInstance uint32
type DrawIndexedArgs struct {
	NumIndices    uint32
	NumInstances  uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// DispatchArgs is the compute dispatch record.
//
// Layout (12 bytes):
//
//	0 GroupsX uint32
//	4 GroupsY uint32
//	8 GroupsZ uint32
type DispatchArgs struct {
	GroupsX uint32
	GroupsY uint32
	GroupsZ uint32
}

// AppendBinary appends the 16-byte record to b.
func (a DrawArgs) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, a.NumVertices)
	b = binary.LittleEndian.AppendUint32(b, a.NumInstances)
	b = binary.LittleEndian.AppendUint32(b, a.FirstVertex)
	b = binary.LittleEndian.AppendUint32(b, a.FirstInstance)
	return b, nil
}

// MarshalBinary returns the 16-byte record.
func (a DrawArgs) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, DrawArgsSize))
}

// UnmarshalBinary decodes the first 16 bytes of b.
func (a *DrawArgs) UnmarshalBinary(b []byte) error {
	if len(b) < DrawArgsSize {
		return fmt.Errorf("draw args: %w (%d < %d)", ErrShortRecord, len(b), DrawArgsSize)
	}
	a.NumVertices = binary.LittleEndian.Uint32(b[0:])
	a.NumInstances = binary.LittleEndian.Uint32(b[4:])
	a.FirstVertex = binary.LittleEndian.Uint32(b[8:])
	a.FirstInstance = binary.LittleEndian.Uint32(b[12:])
	return nil
}

// AppendBinary appends the 20-byte record to b.
func (a DrawIndexedArgs) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, a.NumIndices)
	b = binary.LittleEndian.AppendUint32(b, a.NumInstances)
	b = binary.LittleEndian.AppendUint32(b, a.FirstIndex)
	//nolint:gosec // G115: two's complement reinterpretation is the wire format
	b = binary.LittleEndian.AppendUint32(b, uint32(a.VertexOffset))
	b = binary.LittleEndian.AppendUint32(b, a.FirstInstance)
	return b, nil
}

// MarshalBinary returns the 20-byte record.
func (a DrawIndexedArgs) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, DrawIndexedArgsSize))
}

// UnmarshalBinary decodes the first 20 bytes of b.
func (a *DrawIndexedArgs) UnmarshalBinary(b []byte) error {
	if len(b) < DrawIndexedArgsSize {
		return fmt.Errorf("draw indexed args: %w (%d < %d)", ErrShortRecord, len(b), DrawIndexedArgsSize)
	}
	a.NumIndices = binary.LittleEndian.Uint32(b[0:])
	a.NumInstances = binary.LittleEndian.Uint32(b[4:])
	a.FirstIndex = binary.LittleEndian.Uint32(b[8:])
	//nolint:gosec // G115: two's complement reinterpretation is the wire format
	a.VertexOffset = int32(binary.LittleEndian.Uint32(b[12:]))
	a.FirstInstance = binary.LittleEndian.Uint32(b[16:])
	return nil
}

// AppendBinary appends the 12-byte record to b.
func (a DispatchArgs) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, a.GroupsX)
	b = binary.LittleEndian.AppendUint32(b, a.GroupsY)
	b = binary.LittleEndian.AppendUint32(b, a.GroupsZ)
	return b, nil
}

// MarshalBinary returns the 12-byte record.
func (a DispatchArgs) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, DispatchArgsSize))
}

// UnmarshalBinary decodes the first 12 bytes of b.
func (a *DispatchArgs) UnmarshalBinary(b []byte) error {
	if len(b) < DispatchArgsSize {
		return fmt.Errorf("dispatch args: %w (%d < %d)", ErrShortRecord, len(b), DispatchArgsSize)
	}
	a.GroupsX = binary.LittleEndian.Uint32(b[0:])
	a.GroupsY = binary.LittleEndian.Uint32(b[4:])
	a.GroupsZ = binary.LittleEndian.Uint32(b[8:])
	return nil
}

// IsEmpty reports whether the dispatch launches no workgroups.
func (a DispatchArgs) IsEmpty() bool {
	return a.GroupsX == 0 || a.GroupsY == 0 || a.GroupsZ == 0
}
