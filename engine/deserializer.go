package engine

import (
	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
)

// deserialize rehydrates a storage object from its history: the
// updates of its transactions are scanned newest to oldest, collecting
// the latest value of every eager field, until the class tag is found.
// The cache guarantees that equal references yield the same object
// within the transaction.
func (ctx *Context) deserialize(ref beans.StorageReference) (*Object, error) {
	if o, ok := ctx.cache[ref]; ok {
		return o, nil
	}

	history, err := ctx.engine.Store.GetHistoryUncommitted(ref)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.Wrapf(ErrDeserialization, "object %s not found in store", ref)
	}

	var tag *beans.ClassTag
	fields := make(map[beans.FieldSignature]beans.StorageValue)
	nulls := make(map[beans.FieldSignature]bool)

	for _, tx := range history {
		updates, err := ctx.updatesOf(tx)
		if err != nil {
			return nil, err
		}
		for _, u := range updates {
			if u.Object() != ref {
				continue
			}
			switch u := u.(type) {
			case beans.ClassTag:
				if tag == nil {
					t := u
					tag = &t
				}
			case beans.UpdateOfField:
				if !u.IsEager() {
					continue
				}
				if _, seen := fields[u.Field]; seen || nulls[u.Field] {
					continue
				}
				if u.Value == nil {
					nulls[u.Field] = true
				} else {
					fields[u.Field] = u.Value
				}
			}
		}
		// the class tag lives in the creating transaction, together
		// with the initial value of every field
		if tag != nil {
			break
		}
	}

	if tag == nil {
		return nil, errors.Wrapf(ErrDeserialization, "no class tag in the history of %s", ref)
	}
	if _, ok := ctx.loader.Env.Lookup(tag.Class); !ok {
		return nil, errors.Wrapf(ErrDeserialization, "class %s of %s is not in the classpath", tag.Class, ref)
	}

	o := newObject(ref, tag.Class, true)
	ctx.cache[ref] = o
	for sig, v := range fields {
		rv, err := ctx.runtimeValueOf(v)
		if err != nil {
			return nil, err
		}
		o.setLoaded(sig, rv)
	}
	for sig := range nulls {
		o.setLoaded(sig, nil)
	}
	return o, nil
}

// runtimeValueOf converts a storage value to its runtime form,
// deserializing referenced objects recursively.
func (ctx *Context) runtimeValueOf(v beans.StorageValue) (Value, error) {
	if ref, ok := v.(beans.StorageReference); ok {
		return ctx.deserialize(ref)
	}
	return toRuntime(v)
}

// updatesOf yields the updates committed by a transaction.
func (ctx *Context) updatesOf(tx beans.TransactionReference) ([]beans.Update, error) {
	response, err := ctx.engine.Store.GetResponseUncommitted(tx)
	if err != nil {
		return nil, errors.Wrapf(ErrDeserialization, "history refers to missing transaction %s", tx)
	}
	if withUpdates, ok := response.(beans.ResponseWithUpdates); ok {
		return withUpdates.Updates(), nil
	}
	return nil, nil
}

// lazyFieldOf loads a lazily loaded field on first access: the history
// of the object is scanned newest to oldest for the last update of
// that field. The loaded value becomes the shadow old value, so that
// a mere read produces no update.
func (ctx *Context) lazyFieldOf(o *Object, sig beans.FieldSignature) (Value, error) {
	if v, ok := o.Get(sig); ok {
		return v, nil
	}
	if !o.InStorage {
		// a fresh object has no history; an unset lazy field is null
		o.Set(sig, nil)
		return nil, nil
	}

	history, err := ctx.engine.Store.GetHistoryUncommitted(o.Ref)
	if err != nil {
		return nil, err
	}
	for _, tx := range history {
		updates, err := ctx.updatesOf(tx)
		if err != nil {
			return nil, err
		}
		for _, u := range updates {
			field, ok := u.(beans.UpdateOfField)
			if !ok || field.Ref != o.Ref || !field.Field.Equal(sig) {
				continue
			}
			var v Value
			if field.Value != nil {
				if v, err = ctx.runtimeValueOf(field.Value); err != nil {
					return nil, err
				}
			}
			o.setLoaded(sig, v)
			return v, nil
		}
	}
	o.setLoaded(sig, nil)
	return nil, nil
}
