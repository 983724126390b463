package pipegraph

import (
	"context"
	"errors"
)

var (
	ErrInvalidFormat     = errors.New("pipegraph: invalid pipe format")
	ErrUnknownConnector  = errors.New("pipegraph: unknown connector")
	ErrDanglingReference = errors.New("pipegraph: edge references a missing node")
	ErrCyclicGraph       = errors.New("pipegraph: cycle detected, graph is not acyclic")
	ErrNetworkFailure    = errors.New("pipegraph: backend request failed")
	ErrPublishInFlight   = errors.New("pipegraph: publish already in progress")
	ErrPipeNotFound      = errors.New("pipegraph: pipe not found")
	ErrUnauthorized      = errors.New("pipegraph: unauthorized")
)

// Backend defines the contract for persisting pipes and registered daemons.
// It is served over HTTP by package api and consumed by package client.
type Backend interface {
	// Pipes
	ListPipes(ctx context.Context) ([]PipeConfig, error)
	CreatePipe(ctx context.Context, p *PipeConfig) (int64, error)
	UpdatePipe(ctx context.Context, p *PipeConfig) error
	DeletePipe(ctx context.Context, id int64) error

	// Daemons
	ListDaemons(ctx context.Context) ([]Daemon, error)
	RegisterDaemon(ctx context.Context, d *Daemon) error
}

// PipeList is the body of GET /pipe, POST /pipe and PUT /pipe.
type PipeList struct {
	Configs []PipeConfig `json:"configs"`
}

// CreatedPipe is one element of the POST /pipe response.
type CreatedPipe struct {
	ID int64 `json:"id"`
}

// DaemonList is the body of GET /clients.
type DaemonList struct {
	Clients []Daemon `json:"clients"`
}
