package node

import (
	"sync"

	"github.com/ava-labs/avalanchego/cache"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/engine"
	"github.com/omahs/hotmoka/marshal"
)

const (
	classLoaderCacheSize = 100
	signatureCacheSize   = 1000
	classTagCacheSize    = 1000
)

// caches holds the process-wide caches of a node: class loaders per
// classpath, verified signatures, class tags and the consensus
// parameters.
type caches struct {
	mu sync.Mutex

	loaders    cache.LRU
	signatures cache.LRU
	classTags  cache.LRU

	consensus *engine.Consensus
}

func newCaches(consensus *engine.Consensus) *caches {
	return &caches{
		loaders:    cache.LRU{Size: classLoaderCacheSize},
		signatures: cache.LRU{Size: signatureCacheSize},
		classTags:  cache.LRU{Size: classTagCacheSize},
		consensus:  consensus,
	}
}

// loaderFor resolves and caches the class loader of a classpath.
func (c *caches) loaderFor(store engine.StoreView, classpath beans.TransactionReference) (*engine.ClassLoader, error) {
	c.mu.Lock()
	if cached, ok := c.loaders.Get(classpath); ok {
		c.mu.Unlock()
		return cached.(*engine.ClassLoader), nil
	}
	c.mu.Unlock()

	loader, err := engine.LoadClasspath(store, classpath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.loaders.Put(classpath, loader)
	c.mu.Unlock()
	return loader, nil
}

// invalidateLoaders drops the class loader cache; it happens on every
// successful jar installation, which may extend a classpath chain.
func (c *caches) invalidateLoaders() {
	c.mu.Lock()
	c.loaders.Flush()
	c.mu.Unlock()
}

// checkSignature verifies the signature of a request, memoizing the
// outcome on (request hash, public key).
func (c *caches) checkSignature(alg crypto.SignatureAlgorithm, request beans.SignedTransactionRequest, publicKeyBase64 string) (bool, error) {
	preImage, err := marshal.ToBytes(request.IntoWithoutSignature)
	if err != nil {
		return false, err
	}
	full, err := marshal.ToBytes(request.Into)
	if err != nil {
		return false, err
	}
	key := crypto.Sha256(append(full, publicKeyBase64...))

	c.mu.Lock()
	if cached, ok := c.signatures.Get(key); ok {
		c.mu.Unlock()
		return cached.(bool), nil
	}
	c.mu.Unlock()

	publicKey, err := crypto.DecodeKey(publicKeyBase64)
	if err != nil {
		return false, err
	}
	ok, err := alg.Verify(publicKey, preImage, request.Base().Signature)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.signatures.Put(key, ok)
	c.mu.Unlock()
	return ok, nil
}

// classTagOf finds and caches the class tag of an object.
func (c *caches) classTagOf(store engine.StoreView, object beans.StorageReference) (beans.ClassTag, error) {
	c.mu.Lock()
	if cached, ok := c.classTags.Get(object); ok {
		c.mu.Unlock()
		return cached.(beans.ClassTag), nil
	}
	c.mu.Unlock()

	history, err := store.GetHistoryUncommitted(object)
	if err != nil {
		return beans.ClassTag{}, err
	}
	for _, tx := range history {
		response, err := store.GetResponseUncommitted(tx)
		if err != nil {
			continue
		}
		withUpdates, ok := response.(beans.ResponseWithUpdates)
		if !ok {
			continue
		}
		for _, u := range withUpdates.Updates() {
			if tag, ok := u.(beans.ClassTag); ok && tag.Ref == object {
				c.mu.Lock()
				c.classTags.Put(object, tag)
				c.mu.Unlock()
				return tag, nil
			}
		}
	}
	return beans.ClassTag{}, ErrNotFound
}

// currentConsensus yields the cached consensus parameters.
func (c *caches) currentConsensus() *engine.Consensus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consensus
}

// recomputeConsensus replaces the cached parameters in place, so that
// the engine observes them too; it happens only on explicit request,
// after manifest changes.
func (c *caches) recomputeConsensus(consensus *engine.Consensus) {
	c.mu.Lock()
	*c.consensus = *consensus
	c.mu.Unlock()
}
