package node

import (
	"context"
	"sync"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/log"
)

// RequestLog is the opaque, ordered request log of the consensus
// collaborator: requests submitted to it come back, totally ordered,
// through Deliver.
type RequestLog interface {
	// Submit appends a request to the log.
	Submit(request beans.TransactionRequest) error

	// Deliver blocks for the next ordered request; ok is false when
	// the log is closed.
	Deliver() (request beans.TransactionRequest, ok bool)
}

// ChannelLog is an in-process RequestLog: a bounded FIFO standing in
// for an external consensus engine.
type ChannelLog struct {
	ch        chan beans.TransactionRequest
	closeOnce sync.Once
}

func NewChannelLog(capacity int) *ChannelLog {
	return &ChannelLog{ch: make(chan beans.TransactionRequest, capacity)}
}

func (l *ChannelLog) Submit(request beans.TransactionRequest) (err error) {
	defer func() {
		if recover() != nil { // a closed log refuses submissions
			err = errors.New("the request log is closed")
		}
	}()
	l.ch <- request
	return nil
}

func (l *ChannelLog) Deliver() (beans.TransactionRequest, bool) {
	request, ok := <-l.ch
	return request, ok
}

// Close ends the log; Deliver drains and then reports closure.
func (l *ChannelLog) Close() {
	l.closeOnce.Do(func() { close(l.ch) })
}

// LogBacked is the replicated backend: requests reach the engine only
// through the ordered log, are executed in delivery order, grouped
// into blocks, and every block height is bound to its merged root in
// the hash store. It exposes the same request/response contract as the
// local backend.
type LogBacked struct {
	*Local
	log RequestLog

	mu      sync.Mutex
	pending map[beans.TransactionReference][]*Future
}

// OpenLogBacked opens a log-backed node over the given database and
// log.
func OpenLogBacked(cfg *Config, db kv.Database, requestLog RequestLog) (*LogBacked, error) {
	core, err := openCore(cfg, db, cfg.TransactionsPerBlock, true)
	if err != nil {
		return nil, err
	}
	n := &LogBacked{
		Local:   core,
		log:     requestLog,
		pending: make(map[beans.TransactionReference][]*Future),
	}
	core.wg.Add(1)
	go n.feeder()
	return n, nil
}

// Close ends the log feed and stops the worker; the database under the
// store is not closed.
func (n *LogBacked) Close() error {
	if closer, ok := n.log.(interface{ Close() }); ok {
		closer.Close()
	}
	return n.Local.Close()
}

// feeder drains the ordered log into the execution core and settles
// the futures of locally submitted requests.
func (n *LogBacked) feeder() {
	defer n.Local.wg.Done()
	for {
		request, ok := n.log.Deliver()
		if !ok {
			return
		}
		future, err := n.Local.submit(request)
		if err != nil {
			log.Error(context.Background(), err, "feeding the engine from the log")
			continue
		}
		go n.settle(future)
	}
}

func (n *LogBacked) settle(future *Future) {
	outcome, err := future.Get(context.Background())
	n.mu.Lock()
	waiters := n.pending[future.Reference]
	delete(n.pending, future.Reference)
	n.mu.Unlock()
	for _, w := range waiters {
		w.complete(outcome, err)
	}
}

// submitToLog routes a request through the consensus log and yields a
// future settled when the delivered request has been executed.
func (n *LogBacked) submitToLog(request beans.TransactionRequest) (*Future, error) {
	ref, err := beans.RequestReference(request)
	if err != nil {
		return nil, err
	}
	future := newFuture(ref)
	n.mu.Lock()
	n.pending[ref] = append(n.pending[ref], future)
	n.mu.Unlock()
	if err := n.log.Submit(request); err != nil {
		n.mu.Lock()
		delete(n.pending, ref)
		n.mu.Unlock()
		return nil, errors.Wrap(err, "submitting to the log")
	}
	return future, nil
}

func (n *LogBacked) addViaLog(request beans.TransactionRequest) (beans.StorageValue, error) {
	future, err := n.submitToLog(request)
	if err != nil {
		return nil, err
	}
	return future.Get(context.Background())
}

// BlockRoot yields the authenticated state commitment reached at a
// block height.
func (n *LogBacked) BlockRoot(height uint64) ([]byte, error) {
	return n.Local.store.BlockRoot(height)
}

// The add and post operations of the replicated backend go through
// the log.

func (n *LogBacked) AddInitialJarStoreTransaction(request *beans.InitialJarStoreRequest) (beans.TransactionReference, error) {
	future, err := n.submitToLog(request)
	if err != nil {
		return beans.TransactionReference{}, err
	}
	if _, err := future.Get(context.Background()); err != nil {
		return beans.TransactionReference{}, err
	}
	return future.Reference, nil
}

func (n *LogBacked) AddGameteCreationTransaction(request *beans.GameteCreationRequest) (beans.StorageReference, error) {
	outcome, err := n.addViaLog(request)
	if err != nil {
		return beans.StorageReference{}, err
	}
	return outcome.(beans.StorageReference), nil
}

func (n *LogBacked) AddInitializationTransaction(request *beans.InitializationRequest) error {
	_, err := n.addViaLog(request)
	return err
}

func (n *LogBacked) AddJarStoreTransaction(request *beans.JarStoreRequest) (beans.TransactionReference, error) {
	future, err := n.submitToLog(request)
	if err != nil {
		return beans.TransactionReference{}, err
	}
	if _, err := future.Get(context.Background()); err != nil {
		return beans.TransactionReference{}, err
	}
	return future.Reference, nil
}

func (n *LogBacked) AddConstructorCallTransaction(request *beans.ConstructorCallRequest) (beans.StorageReference, error) {
	outcome, err := n.addViaLog(request)
	if err != nil {
		return beans.StorageReference{}, err
	}
	return outcome.(beans.StorageReference), nil
}

func (n *LogBacked) AddInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (beans.StorageValue, error) {
	return n.addViaLog(request)
}

func (n *LogBacked) AddStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (beans.StorageValue, error) {
	return n.addViaLog(request)
}

func (n *LogBacked) PostJarStoreTransaction(request *beans.JarStoreRequest) (*Future, error) {
	return n.submitToLog(request)
}

func (n *LogBacked) PostConstructorCallTransaction(request *beans.ConstructorCallRequest) (*Future, error) {
	return n.submitToLog(request)
}

func (n *LogBacked) PostInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (*Future, error) {
	return n.submitToLog(request)
}

func (n *LogBacked) PostStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (*Future, error) {
	return n.submitToLog(request)
}
