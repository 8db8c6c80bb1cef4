package verification

import (
	"strings"

	"github.com/omahs/hotmoka/beans"
)

// Env is the class environment of a verification or execution: every
// class visible under a classpath, this module included.
type Env struct {
	classes map[string]*Class
}

// NewEnv yields an empty environment.
func NewEnv() *Env {
	return &Env{classes: make(map[string]*Class)}
}

// Add makes the classes of a module visible. Earlier definitions win,
// matching the breadth-first order of classpath resolution.
func (e *Env) Add(m *Module) {
	for _, c := range m.Classes {
		if _, ok := e.classes[c.Name]; !ok {
			e.classes[c.Name] = c
		}
	}
}

// Merge makes every class of another environment visible; earlier
// definitions win.
func (e *Env) Merge(other *Env) {
	for name, c := range other.classes {
		if _, ok := e.classes[name]; !ok {
			e.classes[name] = c
		}
	}
}

// Lookup finds a class by name.
func (e *Env) Lookup(name string) (*Class, bool) {
	c, ok := e.classes[name]
	return c, ok
}

// IsSubclass reports whether name equals super or inherits from it.
func (e *Env) IsSubclass(name, super string) bool {
	for name != "" {
		if name == super {
			return true
		}
		c, ok := e.classes[name]
		if !ok {
			return false
		}
		name = c.Superclass
	}
	return false
}

// IsStorage reports whether the class persists in storage.
func (e *Env) IsStorage(name string) bool {
	return e.IsSubclass(name, string(beans.ClassTypeStorage))
}

// IsContract reports whether the class is a contract.
func (e *Env) IsContract(name string) bool {
	return e.IsSubclass(name, string(beans.ClassTypeContract))
}

// IsEnum reports whether the class is an enumeration.
func (e *Env) IsEnum(name string) bool {
	c, ok := e.classes[name]
	return ok && c.Enum
}

// IsLazy reports whether fields of the given declared type load on
// demand from history: reference types except strings, big integers
// and enumerations.
func (e *Env) IsLazy(t beans.StorageType) bool {
	ct, ok := t.(beans.ClassType)
	if !ok {
		return false
	}
	if ct.IsEager() {
		return false
	}
	return !e.IsEnum(string(ct))
}

// IsStoragePermitted reports whether a persistent field may have the
// given declared type.
func (e *Env) IsStoragePermitted(t beans.StorageType) bool {
	ct, ok := t.(beans.ClassType)
	if !ok {
		return true // primitives
	}
	if ct.IsEager() {
		return true // strings and big integers
	}
	return e.IsEnum(string(ct)) || e.IsStorage(string(ct))
}

// ResolveMethod finds the declaration of a method, walking the
// superclass chain from the given class.
func (e *Env) ResolveMethod(class, name string, formals []beans.StorageType) (*Class, *Method, bool) {
	for class != "" {
		c, ok := e.classes[class]
		if !ok {
			return nil, nil, false
		}
		if m, ok := c.LookupMethod(name, formals); ok {
			return c, m, true
		}
		class = c.Superclass
	}
	return nil, nil, false
}

// ResolveField finds the declaration of a field, walking the
// superclass chain from the class of the signature.
func (e *Env) ResolveField(sig beans.FieldSignature) (*Class, *Field, bool) {
	class := sig.Class
	for class != "" {
		c, ok := e.classes[class]
		if !ok {
			return nil, nil, false
		}
		for i := range c.Fields {
			if c.Fields[i].Name == sig.Name && c.Fields[i].Type.Name() == sig.Type.Name() {
				return c, &c.Fields[i], true
			}
		}
		class = c.Superclass
	}
	return nil, nil, false
}

// PersistentFields yields the persistent fields of a class in
// canonical order: superclasses first, then by name, then by type.
// This is the order of the deserialization constructor and of sorted
// update sets.
func (e *Env) PersistentFields(class string) []beans.FieldSignature {
	var chain []*Class
	for name := class; name != ""; {
		c, ok := e.classes[name]
		if !ok {
			break
		}
		chain = append(chain, c)
		name = c.Superclass
	}
	var out []beans.FieldSignature
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		var sigs []beans.FieldSignature
		for _, f := range c.Fields {
			if f.Transient {
				continue
			}
			sigs = append(sigs, beans.FieldSignature{Class: c.Name, Name: f.Name, Type: f.Type})
		}
		sortFieldSignatures(sigs)
		out = append(out, sigs...)
	}
	return out
}

func sortFieldSignatures(sigs []beans.FieldSignature) {
	for i := 1; i < len(sigs); i++ {
		for j := i; j > 0 && sigs[j].Cmp(sigs[j-1]) < 0; j-- {
			sigs[j], sigs[j-1] = sigs[j-1], sigs[j]
		}
	}
}

// uncheckedExceptions need no throws-exceptions declaration.
var uncheckedExceptions = map[string]bool{
	"java.lang.RuntimeException":                          true,
	"java.lang.ArithmeticException":                       true,
	"java.lang.NullPointerException":                      true,
	"java.lang.IllegalArgumentException":                  true,
	"java.lang.IllegalStateException":                     true,
	"io.takamaka.code.lang.RequirementViolationException": true,
	"io.takamaka.code.lang.InsufficientFundsError":        true,
}

// IsUncheckedException reports whether throwing the named exception
// requires no throws-exceptions annotation.
func IsUncheckedException(name string) bool {
	return uncheckedExceptions[name] || strings.HasSuffix(name, "Error")
}
