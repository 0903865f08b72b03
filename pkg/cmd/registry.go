package cmd

import (
	"log/slog"

	"github.com/kbflow/kbflow/pkg/handlers/cleanup"
	"github.com/kbflow/kbflow/pkg/handlers/filewrite"
	"github.com/kbflow/kbflow/pkg/handlers/logtask"
	"github.com/kbflow/kbflow/pkg/handlers/transform"
	"github.com/kbflow/kbflow/pkg/handlers/webhook"
	"github.com/kbflow/kbflow/pkg/registry"
)

// NewRegistry builds a handler registry with the native task handlers
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterHandler(webhook.NewHandler(logger))
	reg.RegisterHandler(transform.NewHandler(logger))
	reg.RegisterHandler(filewrite.NewHandler(logger))
	reg.RegisterHandler(cleanup.NewHandler(logger))
	reg.RegisterHandler(logtask.NewHandler(logger))

	return reg
}
