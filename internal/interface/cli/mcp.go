package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/cmd/linkscout/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server that lets an assistant run
explorations headlessly and browse the exploration history.

Logs go to the configured log file; stdout carries the protocol.

Configure in your MCP client's config file:
  {
    "mcpServers": {
      "linkscout": {
        "command": "linkscout",
        "args": ["serve-mcp"]
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := openLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	version := versionInfo
	if version == "" {
		version = "dev"
	}

	if err := mcp.StartServer(mcp.Options{
		Config:  cfg,
		Logger:  logger.Logger,
		Version: version,
	}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
