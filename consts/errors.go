package consts

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrSiteNotFound     = errors.New("site not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrPersonNotFound   = errors.New("person not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrMessageExists    = errors.New("message already exists")

	ErrDBBeginTransactionFailed  = errors.New("start transaction failed")
	ErrDBCommitTransactionFailed = errors.New("commit failed")
	ErrDBInsertFailed            = errors.New("insert failed")
)
