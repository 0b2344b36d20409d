package cli

import (
	"github.com/spf13/cobra"
)

var (
	runListen         string
	runEmbeddedBroker bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, the aggregation loop and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("listen") {
			a.Config.HTTP.ListenAddr = runListen
		}
		if cmd.Flags().Changed("embedded-broker") {
			a.Config.MQTT.EmbeddedBroker.Enabled = runEmbeddedBroker
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "Override http.listen_addr")
	runCmd.Flags().BoolVar(&runEmbeddedBroker, "embedded-broker", false, "Start the in-process MQTT broker")
}
