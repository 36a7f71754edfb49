package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/suppgw/gateway/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "gatewayd",
		Usage: "Multi-channel support gateway runtime",
		Commands: []*cli.Command{
			gwHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
