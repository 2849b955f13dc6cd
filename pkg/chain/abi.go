package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const miningABIJSON = `[
	{"type":"function","name":"roundCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"rounds","stateMutability":"view","inputs":[{"name":"roundId","type":"uint64"}],"outputs":[
		{"name":"epochId","type":"uint64"},
		{"name":"commitOpenAt","type":"uint64"},
		{"name":"commitCloseAt","type":"uint64"},
		{"name":"revealCloseAt","type":"uint64"},
		{"name":"answerHash","type":"bytes32"},
		{"name":"questionId","type":"uint64"},
		{"name":"settled","type":"bool"},
		{"name":"expired","type":"bool"},
		{"name":"answer","type":"string"},
		{"name":"correctCount","type":"uint64"}]},
	{"type":"function","name":"currentEpochId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"epochs","stateMutability":"view","inputs":[{"name":"epochId","type":"uint64"}],"outputs":[
		{"name":"startRound","type":"uint64"},
		{"name":"endRound","type":"uint64"},
		{"name":"rewardPool","type":"uint256"}]},
	{"type":"function","name":"inscriptionContent","stateMutability":"view","inputs":[{"name":"inscriptionId","type":"uint64"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"inscriptionRound","stateMutability":"view","inputs":[{"name":"inscriptionId","type":"uint64"}],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"inscriptionAgent","stateMutability":"view","inputs":[{"name":"inscriptionId","type":"uint64"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"inscriptionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"inscriptionRevealTime","stateMutability":"view","inputs":[{"name":"inscriptionId","type":"uint64"}],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"proofChainHead","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"commitInscription","stateMutability":"nonpayable","inputs":[
		{"name":"roundId","type":"uint64"},
		{"name":"blockType","type":"string"},
		{"name":"summary","type":"string"},
		{"name":"contentHash","type":"bytes32"},
		{"name":"proofHash","type":"bytes32"},
		{"name":"prevHash","type":"bytes32"},
		{"name":"cycleCount","type":"uint64"}],"outputs":[]},
	{"type":"function","name":"revealInscription","stateMutability":"nonpayable","inputs":[
		{"name":"inscriptionId","type":"uint64"},
		{"name":"content","type":"string"},
		{"name":"salt","type":"bytes32"}],"outputs":[]},
	{"type":"event","name":"InscriptionCommitted","inputs":[
		{"name":"agentId","type":"uint64","indexed":true},
		{"name":"inscriptionId","type":"uint64","indexed":true},
		{"name":"contentHash","type":"bytes32","indexed":false},
		{"name":"proofHash","type":"bytes32","indexed":false},
		{"name":"prevHash","type":"bytes32","indexed":false},
		{"name":"blockType","type":"string","indexed":false},
		{"name":"summary","type":"string","indexed":false},
		{"name":"cycleCount","type":"uint64","indexed":false}]}
]`

const stakingABIJSON = `[
	{"type":"function","name":"stakedBalance","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isStaked","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

var (
	miningABI  = mustParseABI(miningABIJSON)
	stakingABI = mustParseABI(stakingABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)

	inscriptionCommittedID = miningABI.Events["InscriptionCommitted"].ID
	transferID             = erc20ABI.Events["Transfer"].ID
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackCommit builds the calldata for commitInscription. Pure function; the
// caller signs and submits.
func PackCommit(roundID uint64, blockType, summary string, contentHash, proofHash, prevHash common.Hash, cycleCount uint64) ([]byte, error) {
	return miningABI.Pack("commitInscription", roundID, blockType, summary, contentHash, proofHash, prevHash, cycleCount)
}

// PackReveal builds the calldata for revealInscription.
func PackReveal(inscriptionID uint64, content string, salt common.Hash) ([]byte, error) {
	return miningABI.Pack("revealInscription", inscriptionID, content, salt)
}
