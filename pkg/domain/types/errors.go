package types

import "github.com/m-mizutani/goerr/v2"

// Error tags used to classify failures that are converted into per-action outcomes
var (
	// ErrTagParse marks a repository URL that none of the accepted grammars could parse
	ErrTagParse = goerr.NewTag("parse")

	// ErrTagConfiguration marks a job or push action that references something that does not exist
	ErrTagConfiguration = goerr.NewTag("configuration")

	// ErrTagTransport marks a failed network or push operation, including non-fast-forward rejections
	ErrTagTransport = goerr.NewTag("transport")

	// ErrTagTimeout marks a remote operation that exceeded its deadline
	ErrTagTimeout = goerr.NewTag("timeout")
)
