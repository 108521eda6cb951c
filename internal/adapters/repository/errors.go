package repository

import "errors"

// Sentinel errors returned by artifact stores.
var (
	ErrNotFound      = errors.New("DAG artifact not found")
	ErrTitleExists   = errors.New("DAG title already exists")
	ErrTitleRequired = errors.New("DAG title is required")
	ErrUserRequired  = errors.New("user GUID is required")
	ErrNoPath        = errors.New("storage path is required")
)
