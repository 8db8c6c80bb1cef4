package engine

import (
	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/verification"
)

// ClassLoader exposes the classes visible under a classpath: the jar
// installed by the classpath transaction and, transitively, the jars
// of its dependencies, in breadth-first order with de-duplication.
//
// Class loaders are cheap to copy and carry no mutable state, so the
// node caches them per classpath; the per-transaction scratch state
// lives in the execution context instead.
type ClassLoader struct {
	Classpath beans.TransactionReference
	Env       *verification.Env

	// jarOf maps every class to the transaction that installed its
	// jar, recorded in class tags.
	jarOf map[string]beans.TransactionReference
}

// ErrClasspathNotFound is returned when a classpath does not refer to
// a successful jar-store response.
var ErrClasspathNotFound = errors.New("classpath not found")

// LoadClasspath resolves a classpath into a class loader.
func LoadClasspath(store StoreView, classpath beans.TransactionReference) (*ClassLoader, error) {
	loader := &ClassLoader{
		Classpath: classpath,
		Env:       verification.NewEnv(),
		jarOf:     make(map[string]beans.TransactionReference),
	}

	seen := map[beans.TransactionReference]bool{}
	queue := []beans.TransactionReference{classpath}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref] {
			continue
		}
		seen[ref] = true

		jar, deps, err := jarAt(store, ref)
		if err != nil {
			return nil, err
		}
		module, err := verification.ModuleFrom(jar)
		if err != nil {
			return nil, errors.Wrapf(err, "loading classpath %s", ref)
		}
		for _, c := range module.Classes {
			if _, ok := loader.jarOf[c.Name]; !ok {
				loader.jarOf[c.Name] = ref
			}
		}
		loader.Env.Add(module)
		queue = append(queue, deps...)
	}
	return loader, nil
}

// jarAt yields the instrumented jar installed by a transaction and its
// dependencies.
func jarAt(store StoreView, ref beans.TransactionReference) ([]byte, []beans.TransactionReference, error) {
	response, err := store.GetResponseUncommitted(ref)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrClasspathNotFound, "%s", ref)
	}
	switch r := response.(type) {
	case *beans.InitialJarStoreResponse:
		return r.InstrumentedJar, r.Dependencies, nil
	case *beans.JarStoreSuccessfulResponse:
		return r.InstrumentedJar, r.Dependencies, nil
	}
	return nil, nil, errors.Wrapf(ErrClasspathNotFound, "%s did not install a jar", ref)
}

// JarOf yields the transaction that installed the jar defining the
// given class.
func (l *ClassLoader) JarOf(class string) (beans.TransactionReference, bool) {
	ref, ok := l.jarOf[class]
	return ref, ok
}

// IsEOA reports whether the class is an externally owned account.
func (l *ClassLoader) IsEOA(class string) bool {
	return l.Env.IsSubclass(class, ClassEOA)
}

// IsGamete reports whether the class is the gamete class.
func (l *ClassLoader) IsGamete(class string) bool {
	return l.Env.IsSubclass(class, ClassGamete)
}

// IsContract reports whether the class is a contract.
func (l *ClassLoader) IsContract(class string) bool {
	return l.Env.IsSubclass(class, ClassContract)
}

// IsExported reports whether the class may be referenced from
// requests coming from outside the node.
func (l *ClassLoader) IsExported(class string) bool {
	c, ok := l.Env.Lookup(class)
	return ok && c.Exported
}
