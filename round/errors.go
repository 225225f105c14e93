package round

import "errors"

// Sentinel error kinds for the round state machine's input and stage
// checks, returned either bare or wrapped with fmt.Errorf("%w: ..."). Errors
// from the store or the crypto kernels are returned as they are.
var (
	// ErrRoundNotFound means the operation references an unknown round.
	ErrRoundNotFound = errors.New("round: not found")
	// ErrBadStage means the round is not in the stage the operation requires
	// (e.g. beacon on an already-beaconed round, finalize before beacon).
	ErrBadStage = errors.New("round: wrong stage for this operation")
	// ErrLeafSizeMismatch means a submitted leaf's length != leaf_size_bytes.
	ErrLeafSizeMismatch = errors.New("round: leaf size mismatch")
	// ErrEmptyCommit means no streams, or a stream with zero leaves, were
	// submitted.
	ErrEmptyCommit = errors.New("round: commit must include at least one leaf")
	// ErrBadSeed is kept for defense; ParseSeed's fallback makes it
	// practically unreachable.
	ErrBadSeed = errors.New("round: seed parser failed")
	// ErrMerkleInconsistency means finalize's recomputed root diverged from
	// the root recorded at commit. Fatal: the round is left in a
	// diagnostic, non-retryable state.
	ErrMerkleInconsistency = errors.New("round: merkle root recomputation diverged from committed root")
	// ErrRangeInvalid means end < start, count < 1, or count exceeds the
	// requested range's size.
	ErrRangeInvalid = errors.New("round: invalid range request")
)
