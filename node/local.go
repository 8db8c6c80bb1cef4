package node

import (
	"context"
	"sync"
	"time"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/engine"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/instrumentation"
	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/log"
	"github.com/omahs/hotmoka/marshal"
	"github.com/omahs/hotmoka/store"
)

// Local is the single-process backend: it owns a store, a bounded
// mempool and one worker that executes requests in arrival order,
// committing one store transaction per request. The log-backed
// backend reuses the same core with block-grouped commits.
type Local struct {
	cfg    *Config
	store  *store.Store
	caches *caches
	engine *engine.Engine

	// blockSize groups this many requests per store commit; the
	// local backend commits per request.
	blockSize int

	// recordRoots notes the merged root per block height, for the
	// replication adapter.
	recordRoots bool
	height      uint64

	mempool chan *task
	quit    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

type task struct {
	ref     beans.TransactionReference
	request beans.TransactionRequest
	future  *Future
}

// OpenLocal opens a local node over the given database.
func OpenLocal(cfg *Config, db kv.Database) (*Local, error) {
	return openCore(cfg, db, 1, false)
}

func openCore(cfg *Config, db kv.Database, blockSize int, recordRoots bool) (*Local, error) {
	st, err := store.Open(db, cfg.CheckableDepth)
	if err != nil {
		return nil, err
	}

	consensus := cfg.Consensus
	// an already initialized store knows its consensus; the cache is
	// recomputed from there
	if raw, err := st.GetInfo(store.InfoConsensus); err == nil {
		if fromStore, err := unmarshalConsensus(raw); err == nil {
			consensus = *fromStore
		}
	}

	if blockSize < 1 {
		blockSize = 1
	}
	n := &Local{
		cfg:         cfg,
		store:       st,
		caches:      newCaches(&consensus),
		blockSize:   blockSize,
		recordRoots: recordRoots,
		mempool:     make(chan *task, cfg.MempoolCapacity),
		quit:        make(chan struct{}),
	}

	alg, err := consensus.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}
	n.engine = &engine.Engine{
		Store:     st,
		Consensus: n.caches.currentConsensus(),
		Gas:       instrumentation.Default(),
		Loader: func(classpath beans.TransactionReference) (*engine.ClassLoader, error) {
			return n.caches.loaderFor(st, classpath)
		},
		CheckSig: func(request beans.SignedTransactionRequest, publicKey string) (bool, error) {
			return n.caches.checkSignature(alg, request, publicKey)
		},
	}

	n.wg.Add(1)
	go n.worker()
	return n, nil
}

// Close stops the worker; the database under the store is not closed.
func (n *Local) Close() error {
	n.closeOnce.Do(func() {
		close(n.quit)
		n.wg.Wait()
	})
	return nil
}

// submit enqueues a request; the mempool applies back-pressure when
// full.
func (n *Local) submit(request beans.TransactionRequest) (*Future, error) {
	ref, err := beans.RequestReference(request)
	if err != nil {
		return nil, err
	}
	t := &task{ref: ref, request: request, future: newFuture(ref)}
	select {
	case n.mempool <- t:
		return t.future, nil
	case <-n.quit:
		return nil, errors.New("the node is closed")
	}
}

// worker consumes the mempool in FIFO order, the only mutator of the
// store. Requests are grouped into blocks of at most blockSize.
func (n *Local) worker() {
	defer n.wg.Done()
	for {
		select {
		case t := <-n.mempool:
			batch := []*task{t}
			for len(batch) < n.blockSize {
				select {
				case more := <-n.mempool:
					batch = append(batch, more)
				default:
					goto full
				}
			}
		full:
			n.processBlock(batch)
		case <-n.quit:
			return
		}
	}
}

// processBlock executes a block of requests inside one store
// transaction. Rejected requests write nothing; a block with no
// accepted request leaves the merged root untouched.
func (n *Local) processBlock(batch []*task) {
	ctx := context.Background()

	if err := n.store.BeginTransaction(); err != nil {
		for _, t := range batch {
			t.future.complete(nil, err)
		}
		return
	}

	type executed struct {
		t        *task
		response beans.TransactionResponse
	}
	var accepted []executed
	jarInstalled := false

	for _, t := range batch {
		response, err := n.engine.Build(t.ref, t.request)
		if err != nil {
			log.Printkv(ctx, "message", "transaction rejected", "ref", t.ref, "error", err)
			t.future.complete(nil, err)
			continue
		}
		if err := n.write(t.ref, t.request, response); err != nil {
			n.store.AbortTransaction()
			for _, e := range accepted {
				e.t.future.complete(nil, errors.Wrap(err, "writing the response"))
			}
			t.future.complete(nil, errors.Wrap(err, "writing the response"))
			return
		}
		if _, ok := response.(*beans.JarStoreSuccessfulResponse); ok {
			jarInstalled = true
		}
		accepted = append(accepted, executed{t: t, response: response})
	}

	if len(accepted) == 0 {
		n.store.AbortTransaction()
		return
	}

	var root []byte
	var err error
	if n.recordRoots {
		n.height++
		root, err = n.store.CommitBlock(n.height)
	} else {
		root, err = n.store.CommitTransaction()
	}
	if err != nil {
		n.store.AbortTransaction()
		for _, e := range accepted {
			e.t.future.complete(nil, errors.Wrap(err, "committing the store"))
		}
		return
	}
	log.Printkv(ctx, "message", "block committed", "transactions", len(accepted), "root", root[:8])

	if jarInstalled {
		n.caches.invalidateLoaders()
	}

	for _, e := range accepted {
		outcome, err := outcomeOf(e.response)
		e.t.future.complete(outcome, err)
	}
}

// write persists the triple of an accepted transaction: the request,
// the response, and the history updates of every touched object, plus
// the control info of initial transactions.
func (n *Local) write(ref beans.TransactionReference, request beans.TransactionRequest, response beans.TransactionResponse) error {
	if err := n.store.SetRequest(ref, request); err != nil {
		return err
	}
	if err := n.store.SetResponse(ref, response); err != nil {
		return err
	}

	if withUpdates, ok := response.(beans.ResponseWithUpdates); ok {
		if err := n.expandHistories(ref, withUpdates.Updates()); err != nil {
			return err
		}
	}

	switch r := request.(type) {
	case *beans.InitialJarStoreRequest:
		if err := n.store.SetInfo(store.InfoTakamakaCode, ref[:]); err != nil {
			return err
		}
		return n.store.SetInfo(store.InfoJar, ref[:])

	case *beans.GameteCreationRequest:
		gamete := response.(*beans.GameteCreationResponse).Gamete
		if err := n.store.SetInfo(store.InfoGamete, gamete.BytesWithoutSelector()); err != nil {
			return err
		}
		return n.store.SetInfo(store.InfoAccounts, gamete.BytesWithoutSelector())

	case *beans.InitializationRequest:
		if err := n.store.SetInfo(store.InfoManifest, r.Manifest.BytesWithoutSelector()); err != nil {
			return err
		}
		consensus, err := marshalConsensus(n.caches.currentConsensus())
		if err != nil {
			return err
		}
		if err := n.store.SetInfo(store.InfoConsensus, consensus); err != nil {
			return err
		}
		return n.store.SetInfo(store.InfoNext, []byte{1})
	}
	return nil
}

// expandHistories prepends the transaction to the history of every
// object its updates touch.
func (n *Local) expandHistories(ref beans.TransactionReference, updates []beans.Update) error {
	touched := make(map[beans.StorageReference]bool)
	var order []beans.StorageReference
	for _, u := range updates {
		if !touched[u.Object()] {
			touched[u.Object()] = true
			order = append(order, u.Object())
		}
	}
	for _, object := range order {
		previous, err := n.store.GetHistoryUncommitted(object)
		if err != nil {
			return err
		}
		history := append([]beans.TransactionReference{ref}, previous...)
		if len(previous) == 0 {
			// the object is created by this very transaction
			if object.Transaction != ref {
				return errors.New("an update refers to an object that does not exist")
			}
			history = []beans.TransactionReference{ref}
		}
		if err := n.store.SetHistory(object, history); err != nil {
			return err
		}
	}
	return nil
}

// outcomeOf maps a response to the outcome the client of an add or
// post operation observes.
func outcomeOf(response beans.TransactionResponse) (beans.StorageValue, error) {
	switch r := response.(type) {
	case *beans.InitialJarStoreResponse, *beans.JarStoreSuccessfulResponse, *beans.InitializationResponse:
		return nil, nil
	case *beans.GameteCreationResponse:
		return r.Gamete, nil
	case *beans.ConstructorCallSuccessfulResponse:
		return r.NewObject, nil
	case *beans.MethodCallSuccessfulResponse:
		return r.Result, nil
	case *beans.VoidMethodCallSuccessfulResponse:
		return nil, nil
	case *beans.ConstructorCallExceptionResponse:
		return nil, &CodeExecutionError{Class: r.ClassOfCause, Message: r.MessageOfCause, Where: r.Where}
	case *beans.MethodCallExceptionResponse:
		return nil, &CodeExecutionError{Class: r.ClassOfCause, Message: r.MessageOfCause, Where: r.Where}
	case *beans.JarStoreFailedResponse:
		return nil, &TransactionFailedError{Class: r.ClassOfCause, Message: r.MessageOfCause}
	case *beans.ConstructorCallFailedResponse:
		return nil, &TransactionFailedError{Class: r.ClassOfCause, Message: r.MessageOfCause, Where: r.Where}
	case *beans.MethodCallFailedResponse:
		return nil, &TransactionFailedError{Class: r.ClassOfCause, Message: r.MessageOfCause, Where: r.Where}
	}
	return nil, nil
}

// RecomputeConsensus reloads the consensus parameter cache from the
// trie of info; it is invoked after manifest changes.
func (n *Local) RecomputeConsensus() error {
	raw, err := n.store.GetInfo(store.InfoConsensus)
	if err != nil {
		return errors.Wrap(err, "the store carries no consensus parameters")
	}
	consensus, err := unmarshalConsensus(raw)
	if err != nil {
		return err
	}
	n.caches.recomputeConsensus(consensus)
	return nil
}

// MergedRoot yields the current authenticated state commitment of the
// node: the concatenation of the three trie roots.
func (n *Local) MergedRoot() []byte {
	return n.store.MergedRoot()
}

// CheckOut repositions the node on a historical merged root; reads
// then observe that state.
func (n *Local) CheckOut(root []byte) error {
	return n.store.CheckOut(root)
}

// Node interface: lookups.

func (n *Local) TakamakaCode() (beans.TransactionReference, error) {
	raw, err := n.store.GetInfo(store.InfoTakamakaCode)
	if err != nil {
		return beans.TransactionReference{}, ErrUninitialized
	}
	var ref beans.TransactionReference
	copy(ref[:], raw)
	return ref, nil
}

func (n *Local) Manifest() (beans.StorageReference, error) {
	raw, err := n.store.GetInfo(store.InfoManifest)
	if err != nil {
		return beans.StorageReference{}, ErrUninitialized
	}
	return storageReferenceFromBytes(raw)
}

func (n *Local) ClassTag(object beans.StorageReference) (beans.ClassTag, error) {
	return n.caches.classTagOf(n.store, object)
}

// State yields the class tag and the most recent value of every field
// of an object, by scanning its history newest to oldest.
func (n *Local) State(object beans.StorageReference) ([]beans.Update, error) {
	history, err := n.store.GetHistory(object)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}

	var state []beans.Update
	seenTag := false
	seenFields := make(map[string]bool)
	for _, tx := range history {
		response, err := n.store.GetResponse(tx)
		if err != nil {
			return nil, err
		}
		withUpdates, ok := response.(beans.ResponseWithUpdates)
		if !ok {
			continue
		}
		for _, u := range withUpdates.Updates() {
			if u.Object() != object {
				continue
			}
			switch u := u.(type) {
			case beans.ClassTag:
				if !seenTag {
					seenTag = true
					state = append(state, u)
				}
			case beans.UpdateOfField:
				key := u.Field.String()
				if !seenFields[key] {
					seenFields[key] = true
					state = append(state, u)
				}
			}
		}
	}
	beans.SortUpdates(state)
	return state, nil
}

func (n *Local) Request(ref beans.TransactionReference) (beans.TransactionRequest, error) {
	request, err := n.store.GetRequest(ref)
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	}
	return request, err
}

func (n *Local) Response(ref beans.TransactionReference) (beans.TransactionResponse, error) {
	response, err := n.store.GetResponse(ref)
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	}
	return response, err
}

func (n *Local) PolledResponse(ctx context.Context, ref beans.TransactionReference) (beans.TransactionResponse, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		response, err := n.Response(ref)
		if err == nil {
			return response, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Node interface: add operations.

func (n *Local) add(request beans.TransactionRequest) (beans.StorageValue, error) {
	future, err := n.submit(request)
	if err != nil {
		return nil, err
	}
	return future.Get(context.Background())
}

func (n *Local) AddInitialJarStoreTransaction(request *beans.InitialJarStoreRequest) (beans.TransactionReference, error) {
	future, err := n.submit(request)
	if err != nil {
		return beans.TransactionReference{}, err
	}
	if _, err := future.Get(context.Background()); err != nil {
		return beans.TransactionReference{}, err
	}
	return future.Reference, nil
}

func (n *Local) AddGameteCreationTransaction(request *beans.GameteCreationRequest) (beans.StorageReference, error) {
	outcome, err := n.add(request)
	if err != nil {
		return beans.StorageReference{}, err
	}
	return outcome.(beans.StorageReference), nil
}

func (n *Local) AddInitializationTransaction(request *beans.InitializationRequest) error {
	_, err := n.add(request)
	return err
}

func (n *Local) AddJarStoreTransaction(request *beans.JarStoreRequest) (beans.TransactionReference, error) {
	future, err := n.submit(request)
	if err != nil {
		return beans.TransactionReference{}, err
	}
	if _, err := future.Get(context.Background()); err != nil {
		return beans.TransactionReference{}, err
	}
	return future.Reference, nil
}

func (n *Local) AddConstructorCallTransaction(request *beans.ConstructorCallRequest) (beans.StorageReference, error) {
	outcome, err := n.add(request)
	if err != nil {
		return beans.StorageReference{}, err
	}
	return outcome.(beans.StorageReference), nil
}

func (n *Local) AddInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (beans.StorageValue, error) {
	return n.add(request)
}

func (n *Local) AddStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (beans.StorageValue, error) {
	return n.add(request)
}

// Node interface: post operations.

func (n *Local) PostJarStoreTransaction(request *beans.JarStoreRequest) (*Future, error) {
	return n.submit(request)
}

func (n *Local) PostConstructorCallTransaction(request *beans.ConstructorCallRequest) (*Future, error) {
	return n.submit(request)
}

func (n *Local) PostInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (*Future, error) {
	return n.submit(request)
}

func (n *Local) PostStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (*Future, error) {
	return n.submit(request)
}

// Node interface: view operations. They execute against the committed
// state and are never committed themselves.

func (n *Local) RunInstanceMethodCallTransaction(request *beans.InstanceMethodCallRequest) (beans.StorageValue, error) {
	return n.runView(request)
}

func (n *Local) RunStaticMethodCallTransaction(request *beans.StaticMethodCallRequest) (beans.StorageValue, error) {
	return n.runView(request)
}

func (n *Local) runView(request beans.TransactionRequest) (beans.StorageValue, error) {
	ref, err := beans.RequestReference(request)
	if err != nil {
		return nil, err
	}
	response, err := n.engine.BuildView(ref, request)
	if err != nil {
		return nil, err
	}
	return outcomeOf(response)
}

func storageReferenceFromBytes(raw []byte) (beans.StorageReference, error) {
	ctx := marshal.FromBytes(raw)
	ref := beans.StorageReferenceFrom(ctx)
	return ref, ctx.Err()
}
