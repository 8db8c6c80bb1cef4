package node

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/engine"
	"github.com/omahs/hotmoka/errors"
)

// InitializedNode drives the genesis of a node: the installation of
// the base library, the creation of the gamete, the creation of the
// manifest and the initialization marker.
type InitializedNode struct {
	Node

	TakamakaCodeRef beans.TransactionReference
	Gamete          beans.StorageReference
	ManifestRef     beans.StorageReference

	// GametePrivateKey signs the genesis requests issued by the
	// gamete.
	GametePrivateKey []byte
}

// gasForGenesis bounds the gas of the genesis calls.
var gasForGenesis = big.NewInt(1_000_000)

// Initialize runs the genesis sequence over a fresh node. When the
// configuration carries no gamete key, a fresh key pair is generated
// with the signature algorithm of the consensus.
func Initialize(n Node, cfg *Config) (*InitializedNode, error) {
	alg, err := cfg.Consensus.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}

	publicKey := cfg.PublicKeyOfGamete
	var privateKey []byte
	if publicKey == "" {
		pub, priv, err := alg.KeyPair()
		if err != nil {
			return nil, err
		}
		publicKey = crypto.EncodeKey(pub)
		privateKey = priv
	}

	takamakaRef, err := n.AddInitialJarStoreTransaction(&beans.InitialJarStoreRequest{
		Jar: engine.TakamakaCodeJar(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "installing the base library")
	}

	gamete, err := n.AddGameteCreationTransaction(&beans.GameteCreationRequest{
		Classpath:        takamakaRef,
		InitialAmount:    cfg.InitialSupply,
		RedInitialAmount: cfg.InitialRedSupply,
		PublicKey:        publicKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating the gamete")
	}

	// the gamete pays for the creation of the manifest
	manifestRequest := &beans.ConstructorCallRequest{
		NonInitialRequest: beans.NonInitialRequest{
			Caller:    gamete,
			Nonce:     big.NewInt(0),
			ChainID:   cfg.Consensus.ChainID,
			GasLimit:  gasForGenesis,
			GasPrice:  big.NewInt(0),
			Classpath: takamakaRef,
		},
		Constructor: beans.NewConstructorSignature(beans.ClassType(engine.ClassManifest), beans.ClassTypeString, beans.ClassTypeGamete),
		Actuals:     []beans.StorageValue{beans.StringValue(cfg.Consensus.ChainID), gamete},
	}
	if err := beans.SignRequest(alg, privateKey, manifestRequest); err != nil {
		return nil, errors.Wrap(err, "signing the manifest creation")
	}
	manifest, err := n.AddConstructorCallTransaction(manifestRequest)
	if err != nil {
		return nil, errors.Wrap(err, "creating the manifest")
	}

	err = n.AddInitializationTransaction(&beans.InitializationRequest{
		Classpath: takamakaRef,
		Manifest:  manifest,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marking the node as initialized")
	}

	return &InitializedNode{
		Node:             n,
		TakamakaCodeRef:  takamakaRef,
		Gamete:           gamete,
		ManifestRef:      manifest,
		GametePrivateKey: privateKey,
	}, nil
}
