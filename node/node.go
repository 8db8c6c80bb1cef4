// Package node exposes the uniform node interface of the engine: the
// request/response contract shared by the local single-process backend
// and the replicated log-backed backend.
package node

import (
	"context"
	"fmt"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
)

// Node is the system boundary of the engine. Errors surface as
// distinguished outcomes, never as ambient transport failures once the
// request has been accepted into the log.
type Node interface {
	// TakamakaCode yields the reference of the base library jar.
	TakamakaCode() (beans.TransactionReference, error)

	// Manifest yields the manifest of the node.
	Manifest() (beans.StorageReference, error)

	// ClassTag yields the class tag of an object in store.
	ClassTag(object beans.StorageReference) (beans.ClassTag, error)

	// State yields the current updates of an object: for every
	// field, its most recent value, plus the class tag.
	State(object beans.StorageReference) ([]beans.Update, error)

	// Request yields the request with the given reference, if any.
	Request(ref beans.TransactionReference) (beans.TransactionRequest, error)

	// Response yields the committed response of a transaction; it is
	// absent until committed.
	Response(ref beans.TransactionReference) (beans.TransactionResponse, error)

	// PolledResponse blocks until the response is committed, or the
	// context expires.
	PolledResponse(ctx context.Context, ref beans.TransactionReference) (beans.TransactionResponse, error)

	// Synchronous add operations: they enqueue the request, wait for
	// its execution and yield its outcome.
	AddInitialJarStoreTransaction(request *beans.InitialJarStoreRequest) (beans.TransactionReference, error)
	AddGameteCreationTransaction(request *beans.GameteCreationRequest) (beans.StorageReference, error)
	AddInitializationTransaction(request *beans.InitializationRequest) error
	AddJarStoreTransaction(request *beans.JarStoreRequest) (beans.TransactionReference, error)
	AddConstructorCallTransaction(request *beans.ConstructorCallRequest) (beans.StorageReference, error)
	AddInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (beans.StorageValue, error)
	AddStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (beans.StorageValue, error)

	// Asynchronous post operations: they enqueue the request and
	// yield a future over its outcome.
	PostJarStoreTransaction(request *beans.JarStoreRequest) (*Future, error)
	PostConstructorCallTransaction(request *beans.ConstructorCallRequest) (*Future, error)
	PostInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (*Future, error)
	PostStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (*Future, error)

	// Run operations execute view calls: they are never committed
	// and leave no trace in the store.
	RunInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (beans.StorageValue, error)
	RunStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (beans.StorageValue, error)

	Close() error
}

// ErrNotFound is returned when a request, response or object is not in
// the store of the node.
var ErrNotFound = errors.New("unknown to this node")

// ErrUninitialized is returned by TakamakaCode and Manifest on a node
// that has not completed its genesis.
var ErrUninitialized = errors.New("the node is not initialized yet")

// CodeExecutionError reports an exception declared by the invoked code
// with throws-exceptions: the transaction is committed and its updates
// hold; the client sees the declared exception.
type CodeExecutionError struct {
	Class   string
	Message string
	Where   string
}

func (e *CodeExecutionError) Error() string {
	return fmt.Sprintf("%s: %s@%s", e.Class, e.Message, e.Where)
}

// TransactionFailedError reports a transaction whose body failed: a
// failed response was committed, keeping only the accounting updates
// of the caller.
type TransactionFailedError struct {
	Class   string
	Message string
	Where   string
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s: %s@%s", e.Class, e.Message, e.Where)
}

// Future is the asynchronous outcome of a post operation.
type Future struct {
	// Reference identifies the posted transaction.
	Reference beans.TransactionReference

	done    chan struct{}
	outcome beans.StorageValue
	err     error
}

func newFuture(ref beans.TransactionReference) *Future {
	return &Future{Reference: ref, done: make(chan struct{})}
}

func (f *Future) complete(outcome beans.StorageValue, err error) {
	f.outcome = outcome
	f.err = err
	close(f.done)
}

// Get blocks until the outcome is available or the context expires.
func (f *Future) Get(ctx context.Context) (beans.StorageValue, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
