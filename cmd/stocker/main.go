package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/clock"
	"github.com/stockerhq/stocker/internal/config"
	"github.com/stockerhq/stocker/internal/migration"
	"github.com/stockerhq/stocker/internal/observability"
	"github.com/stockerhq/stocker/internal/scheduler"
	"github.com/stockerhq/stocker/internal/server"
	"github.com/stockerhq/stocker/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return node, nil
}
