package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrMissingSignature means the X-Hub-Signature-256 header was absent
	ErrMissingSignature = goerr.New("missing signature")
	// ErrInvalidSignature means the signature could not be decoded or did not match
	ErrInvalidSignature = goerr.New("invalid signature")
	// ErrBodyParsing means the payload matched none of the known event shapes
	ErrBodyParsing = goerr.New("unrecognized webhook payload")
	// ErrUndeployable means the policy rules rejected the event
	ErrUndeployable = goerr.New("repository is not deployable")
	// ErrInvalidRepository is returned for repository names that cannot be mapped to a mirror
	ErrInvalidRepository = goerr.New("invalid repository name")
	// ErrGit wraps every failure while synchronizing a mirror
	ErrGit = goerr.New("git synchronization failed")
	// ErrManifest means the deployment manifest was missing or malformed
	ErrManifest = goerr.New("invalid deployment manifest")
	// ErrQueueClosed is returned when pushing to a closed queue
	ErrQueueClosed = goerr.New("queue is closed")
)
