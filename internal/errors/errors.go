package errors

import "errors"

var (
	ErrInvalidAction   = errors.New(`ACTION must be either "deploy" or "destroy"`)
	ErrBucketRequired  = errors.New("BUCKET_NAME is required")
	ErrTokenRequired   = errors.New("GITHUB_TOKEN is required")
	ErrRepoNotFound    = errors.New("github repository not found or token invalid")
	ErrRepoRefRequired = errors.New("repository owner and name are required")
	ErrProjectExists   = errors.New("build project already exists")
	ErrStackNotFound   = errors.New("stack not found")
)
