package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// FilterCommits scans [from, to] for InscriptionCommitted logs on the mining
// contract. Malformed logs are skipped, not fatal, so one bad log cannot
// sink a whole scan window.
func (c *Client) FilterCommits(ctx context.Context, from, to uint64) ([]CommitEvent, error) {
	logs, err := c.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.mining},
		Topics:    [][]common.Hash{{inscriptionCommittedID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter commits [%d, %d]: %w", from, to, err)
	}

	events := make([]CommitEvent, 0, len(logs))
	for _, lg := range logs {
		ev, decErr := decodeCommit(lg)
		if decErr != nil {
			slog.Warn("skipping malformed commit log",
				"block", lg.BlockNumber,
				"tx", lg.TxHash.Hex(),
				"err", decErr,
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeCommit(lg types.Log) (CommitEvent, error) {
	var ev CommitEvent
	if len(lg.Topics) != 3 {
		return ev, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}
	ev.AgentID = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64()
	ev.InscriptionID = new(big.Int).SetBytes(lg.Topics[2].Bytes()).Uint64()

	out, err := miningABI.Unpack("InscriptionCommitted", lg.Data)
	if err != nil {
		return ev, fmt.Errorf("unpack data: %w", err)
	}
	if len(out) != 6 {
		return ev, fmt.Errorf("expected 6 data fields, got %d", len(out))
	}
	if ev.ContentHash, err = asHash(out[0]); err != nil {
		return ev, err
	}
	if ev.ProofHash, err = asHash(out[1]); err != nil {
		return ev, err
	}
	if ev.PrevHash, err = asHash(out[2]); err != nil {
		return ev, err
	}
	var ok bool
	if ev.BlockType, ok = out[3].(string); !ok {
		return ev, fmt.Errorf("expected string blockType, got %T", out[3])
	}
	if ev.Summary, ok = out[4].(string); !ok {
		return ev, fmt.Errorf("expected string summary, got %T", out[4])
	}
	if ev.CycleCount, err = asUint64(out[5]); err != nil {
		return ev, err
	}

	ev.TxHash = lg.TxHash
	ev.BlockNumber = lg.BlockNumber
	return ev, nil
}

// FilterStakeTransfers scans [from, to] for token Transfer logs into or out
// of the staking contract. Topic filters cannot express from-or-to in a
// single query, so two queries are merged.
func (c *Client) FilterStakeTransfers(ctx context.Context, from, to uint64) ([]Transfer, error) {
	stakingTopic := common.BytesToHash(c.staking.Bytes())

	outbound, err := c.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{transferID}, {stakingTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter unstakes [%d, %d]: %w", from, to, err)
	}

	inbound, err := c.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{transferID}, nil, {stakingTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter stakes [%d, %d]: %w", from, to, err)
	}

	transfers := make([]Transfer, 0, len(outbound)+len(inbound))
	for _, lg := range append(outbound, inbound...) {
		tr, decErr := decodeTransfer(lg)
		if decErr != nil {
			slog.Warn("skipping malformed transfer log",
				"block", lg.BlockNumber,
				"tx", lg.TxHash.Hex(),
				"err", decErr,
			)
			continue
		}
		transfers = append(transfers, tr)
	}
	return transfers, nil
}

func decodeTransfer(lg types.Log) (Transfer, error) {
	var tr Transfer
	if len(lg.Topics) != 3 {
		return tr, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}
	tr.From = common.BytesToAddress(lg.Topics[1].Bytes())
	tr.To = common.BytesToAddress(lg.Topics[2].Bytes())
	tr.Value = new(big.Int).SetBytes(lg.Data)
	tr.BlockNumber = lg.BlockNumber
	return tr, nil
}

func (c *Client) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		logs, callErr = ec.FilterLogs(ctx, q)
		return callErr
	})
	return logs, err
}
