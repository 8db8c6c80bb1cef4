package engine

import (
	"github.com/omahs/hotmoka/beans"
)

// Object is a live storage object inside one execution context. Its
// identity is its storage reference; a deserialization cache
// guarantees that equal references yield the same Object within a
// transaction.
type Object struct {
	Ref   beans.StorageReference
	Class string

	// InStorage distinguishes rehydrated objects from objects
	// created by the current transaction.
	InStorage bool

	// fields maps field signatures to current runtime values. Lazy
	// fields are absent until first access.
	fields map[beans.FieldSignature]Value

	// old shadows the loaded value of every field, to detect
	// mutations at extraction time.
	old map[beans.FieldSignature]Value

	// caller is the contract that invoked the current from-contract
	// code on this object. It is execution state, never persisted.
	caller *Object
}

func newObject(ref beans.StorageReference, class string, inStorage bool) *Object {
	return &Object{
		Ref:       ref,
		Class:     class,
		InStorage: inStorage,
		fields:    make(map[beans.FieldSignature]Value),
		old:       make(map[beans.FieldSignature]Value),
	}
}

// Get yields the current value of a field and whether it is loaded.
func (o *Object) Get(sig beans.FieldSignature) (Value, bool) {
	v, ok := o.fields[sig]
	return v, ok
}

// Set assigns a field.
func (o *Object) Set(sig beans.FieldSignature, v Value) {
	o.fields[sig] = v
}

// setLoaded assigns a field together with its shadow old value, as
// done when rehydrating from updates or on first lazy access.
func (o *Object) setLoaded(sig beans.FieldSignature, v Value) {
	o.fields[sig] = v
	o.old[sig] = v
}
