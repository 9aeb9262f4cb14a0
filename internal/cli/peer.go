package cli

import (
	"github.com/spf13/cobra"

	"github.com/quorum-sim/generals/internal/daemon"
)

func init() {
	peerCmd.Flags().IntVar(&peerID, "id", 0, "Id of this general")
	peerCmd.Flags().IntVar(&peerPrimary, "primary", 1, "Id of the primary at start")
	peerCmd.Flags().StringVar(&peerHost, "host", "", "Host to listen on (overrides config)")
	peerCmd.Flags().IntVar(&peerBasePort, "base-port", 0, "Base port; general N listens on base+N (overrides config)")
	peerCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(peerCmd)
}

var (
	peerID       int
	peerPrimary  int
	peerHost     string
	peerBasePort int
)

var peerCmd = &cobra.Command{
	Use:    "peer",
	Short:  "Serve one general (started by run)",
	Hidden: true,
	RunE:   runPeer,
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(peerHost, peerBasePort)
	if err != nil {
		return err
	}

	p, err := daemon.NewPeer(cfg, peerID, peerPrimary)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Serve(cmd.Context())
}
