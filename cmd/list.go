package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawbench/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured models and prompt variants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Models:")
			for _, m := range cfg.Models {
				fmt.Printf("  - %s (%s @ %s)\n", m.Name, m.ModelID, m.BaseURL)
			}
			fmt.Println("\nPrompt variants:")
			for _, v := range cfg.PromptVariants {
				fmt.Printf("  - %s (%d prompt(s))\n", v.Name, len(v.Prompts))
			}
			return nil
		},
	}
}
