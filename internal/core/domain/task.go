package domain

import "errors"

// TaskKind names a recurring operation. At most one task of each kind runs at a time.
type TaskKind string

const (
	TaskScrape             TaskKind = "scrape"
	TaskMint               TaskKind = "mint"
	TaskRefreshFeeEstimate TaskKind = "refresh_fee_estimate"
)

// TaskKinds lists every task kind.
var TaskKinds = []TaskKind{TaskScrape, TaskMint, TaskRefreshFeeEstimate}

// ErrTaskInProgress is returned by a task run that found its token already taken.
var ErrTaskInProgress = errors.New("task already in progress")
