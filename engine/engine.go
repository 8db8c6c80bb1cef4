// Package engine executes transactions: it loads classes under a
// classpath, runs constructors and methods of storage objects inside a
// gas-metered interpreter, and turns the resulting object graph into
// the updates committed by a response.
package engine

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/instrumentation"
)

// StoreView is the read access the engine needs over the store of the
// node, including the effects of the store transaction in progress.
type StoreView interface {
	GetResponseUncommitted(ref beans.TransactionReference) (beans.TransactionResponse, error)
	GetHistoryUncommitted(object beans.StorageReference) ([]beans.TransactionReference, error)
	GetInfoUncommitted(tag byte) ([]byte, error)
}

// ClassLoaderProvider yields the class loader of a classpath. The node
// caches loaders; the engine only consumes them.
type ClassLoaderProvider func(classpath beans.TransactionReference) (*ClassLoader, error)

// SignatureChecker verifies the signature of a request against the
// public key of its caller. The node wraps it with a bounded cache.
type SignatureChecker func(request beans.SignedTransactionRequest, publicKeyBase64 string) (bool, error)

// Engine builds responses for requests. It is stateless across
// transactions: every Build call creates a fresh execution context
// that is destroyed at its end.
type Engine struct {
	Store     StoreView
	Consensus *Consensus
	Gas       *instrumentation.GasCostModel
	Loader    ClassLoaderProvider
	CheckSig  SignatureChecker
}

// ErrTransactionRejected marks a request that is not admissible.
// Nothing is written to the store for a rejected request.
var ErrTransactionRejected = errors.New("transaction rejected")

// ErrOutOfGas marks the exhaustion of the gas budget of the current
// transaction. It is a transaction failure, never a code execution
// exception.
var ErrOutOfGas = errors.New("out of gas")

// Rejected wraps a cause as a transaction rejection.
func Rejected(format string, args ...interface{}) error {
	return errors.WithDetailf(ErrTransactionRejected, format, args...)
}

// IsRejected reports whether err is a transaction rejection.
func IsRejected(err error) bool {
	return errors.Root(err) == ErrTransactionRejected
}

// Build executes a request and yields its response. A returned error
// means the request was rejected and nothing may be written.
func (e *Engine) Build(ref beans.TransactionReference, request beans.TransactionRequest) (beans.TransactionResponse, error) {
	switch r := request.(type) {
	case *beans.InitialJarStoreRequest:
		return e.buildInitialJarStore(ref, r)
	case *beans.GameteCreationRequest:
		return e.buildGameteCreation(ref, r)
	case *beans.InitializationRequest:
		return e.buildInitialization(ref, r)
	case *beans.JarStoreRequest:
		return e.buildJarStore(ref, r)
	case *beans.ConstructorCallRequest:
		return e.buildConstructorCall(ref, r)
	case *beans.InstanceMethodCallRequest:
		return e.buildInstanceMethodCall(ref, r, false)
	case *beans.StaticMethodCallRequest:
		return e.buildStaticMethodCall(ref, r, false)
	}
	return nil, Rejected("unknown request type %T", request)
}

// minimumGas is the lower bound of the gas limit of a non-initial
// request: the fixed cpu, ram and storage baseline.
func (e *Engine) minimumGas() *big.Int {
	baseline := e.Gas.CPUBaseTransactionCost + e.Gas.RAMObjectAllocationCost + e.Gas.StorageCostPerByte
	return big.NewInt(baseline)
}

// Consensus holds the parameters agreed by the network.
type Consensus struct {
	ChainID                  string
	Signature                string
	MaxGasPerViewTransaction *big.Int
	AllowUnsignedFaucet      bool
	AllowMintBurnFromGamete  bool
	AllowSelfCharged         bool
	IgnoreGasPrice           bool
}

// DefaultConsensus yields the parameters of a test network: ed25519
// signatures and a generous view cap.
func DefaultConsensus() *Consensus {
	return &Consensus{
		ChainID:                  "",
		Signature:                "ed25519",
		MaxGasPerViewTransaction: big.NewInt(1_000_000),
	}
}

// SignatureAlgorithm resolves the signature algorithm of the
// consensus.
func (c *Consensus) SignatureAlgorithm() (crypto.SignatureAlgorithm, error) {
	return crypto.SignatureAlgorithmFor(c.Signature)
}
