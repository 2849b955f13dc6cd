package calldata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/agentmine-network/agentmine-indexer/internal/resolver"
	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Named request-rejection conditions. Handlers map these to client-error
// statuses; everything else is a server error.
var (
	ErrBadWallet         = errors.New("malformed wallet address")
	ErrInsufficientStake = errors.New("staked amount below protocol minimum")
	ErrRoundNotFound     = errors.New("round not found")
)

// ChainReader is the chain surface the service derives payloads from. It
// includes the block reads the answer resolver needs.
type ChainReader interface {
	RoundCount(ctx context.Context) (uint64, error)
	RoundByID(ctx context.Context, id uint64) (*chain.Round, error)
	InscriptionCount(ctx context.Context) (uint64, error)
	InscriptionRound(ctx context.Context, id uint64) (uint64, error)
	InscriptionAgent(ctx context.Context, id uint64) (common.Address, error)
	InscriptionRevealTime(ctx context.Context, id uint64) (uint64, error)
	InscriptionContent(ctx context.Context, id uint64) (string, error)
	ProofChainHead(ctx context.Context, wallet common.Address) (common.Hash, error)
	StakeOf(ctx context.Context, wallet common.Address) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, number *big.Int) ([]byte, error)
	MiningContract() common.Address
	ChainID() uint64
}

// Config holds the service's bounded-scan policies.
type Config struct {
	RoundLookback  uint64 // rounds scanned backward when auto-selecting
	RevealLookback uint64 // inscriptions scanned backward to find the wallet's commit
}

// DefaultConfig returns the service's default scan policies.
func DefaultConfig() Config {
	return Config{
		RoundLookback:  12,
		RevealLookback: 500,
	}
}

// TxPayload is one ready-to-submit transaction.
type TxPayload struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID uint64 `json:"chain_id"`
}

// Result is the full derivation response. Nullable fields are explicitly
// null when the underlying value cannot be derived yet; Status always says
// what the caller should do next.
type Result struct {
	RoundID           uint64         `json:"round_id"`
	Phase             protocol.Phase `json:"phase,omitempty"`
	InCommit          bool           `json:"in_commit"`
	InReveal          bool           `json:"in_reveal"`
	CommitSecondsLeft int64          `json:"commit_seconds_left"`
	RevealSecondsLeft int64          `json:"reveal_seconds_left"`
	Question          *string        `json:"question"`
	Answer            *string        `json:"answer"`
	Salt              *string        `json:"salt"`
	Commit            *TxPayload     `json:"commit_calldata"`
	Reveal            *TxPayload     `json:"reveal_calldata"`
	Status            string         `json:"status"`
}

// Service derives commit and reveal payloads per request. Invocations are
// stateless; everything is read fresh from the chain.
type Service struct {
	chain    ChainReader
	resolver *resolver.Resolver
	cfg      Config
	now      func() int64
}

// New creates a Service. A nil now uses wall-clock time.
func New(chainReader ChainReader, cfg Config, now func() int64) *Service {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if cfg.RoundLookback == 0 {
		cfg.RoundLookback = DefaultConfig().RoundLookback
	}
	if cfg.RevealLookback == 0 {
		cfg.RevealLookback = DefaultConfig().RevealLookback
	}
	return &Service{
		chain:    chainReader,
		resolver: resolver.New(chainReader),
		cfg:      cfg,
		now:      now,
	}
}

// Derive produces the next actionable payload for a wallet. roundID zero
// auto-selects the most recent round with an open commit or reveal window.
// The stake gate runs before anything else.
func (s *Service) Derive(ctx context.Context, walletHex string, roundID uint64) (*Result, error) {
	if !common.IsHexAddress(walletHex) {
		return nil, fmt.Errorf("%q: %w", walletHex, ErrBadWallet)
	}
	wallet := common.HexToAddress(walletHex)

	staked, err := s.chain.StakeOf(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("read stake: %w", err)
	}
	if staked.Cmp(protocol.MinStake) < 0 {
		return nil, fmt.Errorf("staked %s, need %s: %w", staked, protocol.MinStake, ErrInsufficientStake)
	}

	var r *chain.Round
	if roundID != 0 {
		if r, err = s.fetchRound(ctx, roundID); err != nil {
			return nil, err
		}
	} else {
		if r, err = s.selectRound(ctx); err != nil {
			return nil, err
		}
		if r == nil {
			return &Result{Status: "no round with an open commit or reveal window, nothing to do"}, nil
		}
	}

	now := s.now()
	res := &Result{
		RoundID:           r.ID,
		Phase:             protocol.Classify(r.CommitCloseAt, r.RevealCloseAt, r.Settled, r.Expired, now),
		CommitSecondsLeft: protocol.SecondsLeft(r.CommitCloseAt, now),
		RevealSecondsLeft: protocol.SecondsLeft(r.RevealCloseAt, now),
	}
	res.InCommit = res.Phase == protocol.PhaseCommit
	res.InReveal = res.Phase == protocol.PhaseReveal

	switch res.Phase {
	case protocol.PhaseCommit:
		err = s.commitPath(ctx, wallet, r, res)
	case protocol.PhaseReveal:
		err = s.revealPath(ctx, wallet, r, res)
	case protocol.PhaseSettling:
		res.Status = "reveal window closed, awaiting oracle settlement"
	case protocol.PhaseSettled:
		res.Status = fmt.Sprintf("round %d is settled", r.ID)
	case protocol.PhaseExpired:
		res.Status = fmt.Sprintf("round %d expired without settlement", r.ID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// fetchRound loads an explicitly requested round. An unposted slot (zero
// open timestamp) is indistinguishable from a missing round to callers.
func (s *Service) fetchRound(ctx context.Context, id uint64) (*chain.Round, error) {
	count, err := s.chain.RoundCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("round count: %w", err)
	}
	if id > count {
		return nil, fmt.Errorf("round %d: %w", id, ErrRoundNotFound)
	}
	r, err := s.chain.RoundByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch round %d: %w", id, err)
	}
	if r.CommitOpenAt == 0 {
		return nil, fmt.Errorf("round %d not posted: %w", id, ErrRoundNotFound)
	}
	return r, nil
}

// selectRound scans backward from the latest round for the most recent one
// whose commit or reveal window is open now. Nil means no action is needed.
func (s *Service) selectRound(ctx context.Context) (*chain.Round, error) {
	count, err := s.chain.RoundCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("round count: %w", err)
	}

	now := s.now()
	floor := uint64(1)
	if count > s.cfg.RoundLookback {
		floor = count - s.cfg.RoundLookback + 1
	}
	for id := count; id >= floor; id-- {
		r, err := s.chain.RoundByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch round %d: %w", id, err)
		}
		if r.CommitOpenAt == 0 {
			continue
		}
		switch protocol.Classify(r.CommitCloseAt, r.RevealCloseAt, r.Settled, r.Expired, now) {
		case protocol.PhaseCommit, protocol.PhaseReveal:
			return r, nil
		}
	}
	return nil, nil
}

// commitPath assembles a commit payload. A question the oracle has not yet
// revealed is a pending condition, not an error; an unanswerable question is
// terminal and reported in the status, since no retry can produce an answer.
func (s *Service) commitPath(ctx context.Context, wallet common.Address, r *chain.Round, res *Result) error {
	question, err := s.questionText(ctx, r)
	if err != nil {
		return err
	}
	if question == "" {
		res.Status = "question not yet revealed by the oracle, poll again shortly"
		return nil
	}
	res.Question = &question

	answer, err := s.resolveAnswer(ctx, question)
	if errors.Is(err, resolver.ErrUnresolvable) {
		res.Status = "no answer can be derived for this question, round is not actionable"
		return nil
	}
	if err != nil {
		return err
	}
	res.Answer = &answer

	salt := protocol.DeriveSalt(r.ID, wallet)
	saltHex := strings.ToLower(salt.Hex())
	res.Salt = &saltHex

	contentHash := protocol.ContentHash(answer, salt)
	prevHead, err := s.chain.ProofChainHead(ctx, wallet)
	if err != nil {
		return fmt.Errorf("proof chain head: %w", err)
	}
	proofHash := protocol.ProofHash(contentHash, prevHead)

	summary := fmt.Sprintf("mined round %d", r.ID)
	data, err := chain.PackCommit(r.ID, protocol.BlockTypeMine, summary, contentHash, proofHash, prevHead, 1)
	if err != nil {
		return fmt.Errorf("pack commit: %w", err)
	}

	res.Commit = s.payload(data)
	res.Status = fmt.Sprintf("submit commit for round %d within %ds", r.ID, res.CommitSecondsLeft)
	return nil
}

// revealPath locates the wallet's own unrevealed commit for the round and
// assembles the reveal payload from the re-derived answer and salt.
func (s *Service) revealPath(ctx context.Context, wallet common.Address, r *chain.Round, res *Result) error {
	insID, revealed, err := s.findCommit(ctx, wallet, r.ID)
	if err != nil {
		return err
	}
	if insID == 0 {
		res.Status = fmt.Sprintf("no commit by this wallet found in round %d, nothing to reveal", r.ID)
		return nil
	}
	if revealed {
		res.Status = fmt.Sprintf("commit for round %d is already revealed", r.ID)
		return nil
	}

	question, err := s.questionText(ctx, r)
	if err != nil {
		return err
	}
	if question == "" {
		// A committed round always has a revealed question; treat the gap as
		// transient chain lag.
		res.Status = "question unavailable, poll again shortly"
		return nil
	}
	res.Question = &question

	answer, err := s.resolveAnswer(ctx, question)
	if errors.Is(err, resolver.ErrUnresolvable) {
		res.Status = "no answer can be derived for this question, round is not actionable"
		return nil
	}
	if err != nil {
		return err
	}
	res.Answer = &answer

	salt := protocol.DeriveSalt(r.ID, wallet)
	saltHex := strings.ToLower(salt.Hex())
	res.Salt = &saltHex

	data, err := chain.PackReveal(insID, answer, salt)
	if err != nil {
		return fmt.Errorf("pack reveal: %w", err)
	}

	res.Reveal = s.payload(data)
	res.Status = fmt.Sprintf("submit reveal for inscription %d within %ds", insID, res.RevealSecondsLeft)
	return nil
}

// findCommit scans a bounded window of recent inscriptions, most recent
// first, for one authored by the wallet and linked to the round. Returns id
// zero when none is found within the window.
func (s *Service) findCommit(ctx context.Context, wallet common.Address, roundID uint64) (id uint64, revealed bool, err error) {
	count, err := s.chain.InscriptionCount(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("inscription count: %w", err)
	}

	floor := uint64(1)
	if count > s.cfg.RevealLookback {
		floor = count - s.cfg.RevealLookback + 1
	}
	for ins := count; ins >= floor; ins-- {
		linked, err := s.chain.InscriptionRound(ctx, ins)
		if err != nil {
			return 0, false, fmt.Errorf("inscription %d round: %w", ins, err)
		}
		if linked != roundID {
			continue
		}
		author, err := s.chain.InscriptionAgent(ctx, ins)
		if err != nil {
			return 0, false, fmt.Errorf("inscription %d agent: %w", ins, err)
		}
		if author != wallet {
			continue
		}
		revealTime, err := s.chain.InscriptionRevealTime(ctx, ins)
		if err != nil {
			return 0, false, fmt.Errorf("inscription %d reveal time: %w", ins, err)
		}
		return ins, revealTime != 0, nil
	}
	return 0, false, nil
}

// questionText returns the oracle's question, empty while unrevealed.
func (s *Service) questionText(ctx context.Context, r *chain.Round) (string, error) {
	if r.QuestionID == 0 {
		return "", nil
	}
	revealTime, err := s.chain.InscriptionRevealTime(ctx, r.QuestionID)
	if err != nil {
		return "", fmt.Errorf("question reveal time: %w", err)
	}
	if revealTime == 0 {
		return "", nil
	}
	question, err := s.chain.InscriptionContent(ctx, r.QuestionID)
	if err != nil {
		return "", fmt.Errorf("question content: %w", err)
	}
	return question, nil
}

// resolveAnswer derives the canonical answer. A question that cannot be
// parsed is as terminal as an unanswerable one, so both surface as
// resolver.ErrUnresolvable; retrying cannot help either.
func (s *Service) resolveAnswer(ctx context.Context, question string) (string, error) {
	ch, err := resolver.ParseChallenge(question)
	if err != nil {
		return "", fmt.Errorf("parse challenge: %v: %w", err, resolver.ErrUnresolvable)
	}
	answer, err := s.resolver.Resolve(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("resolve answer: %w", err)
	}
	return answer, nil
}

func (s *Service) payload(data []byte) *TxPayload {
	return &TxPayload{
		To:      strings.ToLower(s.chain.MiningContract().Hex()),
		Data:    hexutil.Encode(data),
		Value:   "0",
		ChainID: s.chain.ChainID(),
	}
}
