package engine

import (
	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
)

// extractUpdates walks the set of objects reachable from the given
// roots and computes the updates committed by the transaction: for a
// fresh object, its class tag and the value of every persistent field;
// for a rehydrated object, the fields whose current value differs from
// the shadow old value. The result is sorted canonically.
func (ctx *Context) extractUpdates(roots []*Object) ([]beans.Update, error) {
	seen := make(map[beans.StorageReference]bool)
	var worklist []*Object
	enqueue := func(o *Object) {
		if o != nil && !seen[o.Ref] {
			seen[o.Ref] = true
			worklist = append(worklist, o)
		}
	}
	for _, o := range roots {
		enqueue(o)
	}

	var updates []beans.Update
	for len(worklist) > 0 {
		o := worklist[0]
		worklist = worklist[1:]

		if !o.InStorage {
			jar, ok := ctx.loader.JarOf(o.Class)
			if !ok {
				return nil, errors.Wrapf(ErrDeserialization, "no jar installed class %s", o.Class)
			}
			updates = append(updates, beans.ClassTag{Ref: o.Ref, Class: o.Class, Jar: jar})
		}

		for _, sig := range ctx.loader.Env.PersistentFields(o.Class) {
			current, touched := o.Get(sig)
			old, hadOld := o.old[sig]

			if !o.InStorage {
				if !touched {
					current = zeroOf(sig.Type)
				}
				u, err := ctx.updateFor(o.Ref, sig, current)
				if err != nil {
					return nil, err
				}
				updates = append(updates, u)
				enqueueReferents(enqueue, current)
				continue
			}

			if !touched {
				continue // never loaded, so never modified
			}
			if hadOld && valuesEqual(old, current) {
				// unchanged, but the referents of lazy fields may
				// have been modified through this object
				enqueueReferents(enqueue, current)
				continue
			}
			u, err := ctx.updateFor(o.Ref, sig, current)
			if err != nil {
				return nil, err
			}
			updates = append(updates, u)
			enqueueReferents(enqueue, current)
			enqueueReferents(enqueue, old)
		}
	}

	beans.SortUpdates(updates)
	return updates, nil
}

func enqueueReferents(enqueue func(*Object), v Value) {
	if o, ok := v.(*Object); ok {
		enqueue(o)
	}
}

// updateFor builds the update binding a field to its current runtime
// value. An explicit update to null distinguishes eager from lazy
// according to the declared type.
func (ctx *Context) updateFor(ref beans.StorageReference, sig beans.FieldSignature, current Value) (beans.Update, error) {
	if current == nil {
		return beans.UpdateOfField{Ref: ref, Field: sig, Eager: !ctx.loader.Env.IsLazy(sig.Type)}, nil
	}
	value, err := toStorage(current, sig.Type)
	if err != nil {
		return nil, errors.Wrapf(err, "field %s", sig)
	}
	return beans.UpdateOfField{Ref: ref, Field: sig, Value: value}, nil
}
