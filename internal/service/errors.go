package service

import "errors"

var (
	ErrNotParticipant   = errors.New("actor is not a participant of this session")
	ErrNotEndable       = errors.New("session has not started and cannot be ended")
	ErrSemanticsFailed  = errors.New("could not determine session outcome")
	ErrTransitionFailed = errors.New("could not update session status")
)
