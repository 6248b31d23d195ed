package consultation

import "github.com/spf13/cobra"

func NewConsultationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consultation",
		Short: "Consultation maintenance commands",
	}

	cmd.AddCommand(NewSweepCommand())

	return cmd
}
