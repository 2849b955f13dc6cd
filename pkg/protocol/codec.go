package protocol

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// saltDomain separates salt derivation from every other keccak use in the
// protocol. Changing it invalidates all derived salts.
const saltDomain = "agentmine/salt/v1"

// ZeroHash is the proof-chain link used by a wallet's first inscription.
var ZeroHash = common.Hash{}

// DeriveSalt returns the deterministic per-round per-wallet salt:
// keccak256(domain || uint64-BE round id || 20 raw wallet bytes).
// No local state is involved, so the same salt is reproducible at reveal
// time in any process.
func DeriveSalt(roundID uint64, wallet common.Address) common.Hash {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	return common.BytesToHash(crypto.Keccak256([]byte(saltDomain), id[:], wallet.Bytes()))
}

// ContentHash commits to an answer: keccak256 of the raw UTF-8 answer bytes
// followed by the raw 32 salt bytes. The on-chain verifier recomputes this
// exact byte layout at reveal, so no length prefixes or ABI padding.
func ContentHash(answer string, salt common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte(answer), salt.Bytes()))
}

// ProofHash links an inscription into the wallet's proof chain:
// keccak256(content hash || previous chain head). A wallet with no prior
// inscriptions uses ZeroHash as the head.
func ProofHash(contentHash, prevHead common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(contentHash.Bytes(), prevHead.Bytes()))
}
