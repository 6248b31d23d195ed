package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	consultationcmd "github.com/Alijeyrad/teleconsult/cmd/consultation"
	httpcmd "github.com/Alijeyrad/teleconsult/cmd/http"
	systemcmd "github.com/Alijeyrad/teleconsult/cmd/system"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "teleconsult",
	Short: "Telehealth consultation lifecycle and payment collection service.",
	Long: `Teleconsult tracks video consultations from scheduling to completion,
handles reschedules and collects consultation fees through PhonePe,
issuing a receipt for every paid consultation.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
	rootCmd.AddCommand(consultationcmd.NewConsultationCommand())
}
