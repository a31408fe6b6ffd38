package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sufield/certswap/internal/adapters/secondary/bundlefile"
	configadapter "github.com/sufield/certswap/internal/adapters/secondary/config"
	"github.com/sufield/certswap/internal/core/reload"
)

var checkConfigPath string

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a configuration file and its declared bundles",
	Long: `Validate a configuration file and its declared bundles.

Beyond structural validation, every declared bundle is loaded from disk and
the TLS settings are resolved against it, so a bundle that would prevent the
server from starting is reported here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckConfig(cmd, checkConfigPath)
	},
}

func init() {
	checkConfigCmd.Flags().StringVarP(&checkConfigPath, "config", "c", "certswap.yaml", "path to the configuration file")
}

func runCheckConfig(cmd *cobra.Command, configPath string) error {
	cfg, err := configadapter.NewProvider().Load(configPath)
	if err != nil {
		return err
	}
	cmd.Printf("configuration OK: %s\n", configPath)

	source, err := bundlefile.New(cfg.Bundles)
	if err != nil {
		return err
	}
	for name := range cfg.Bundles {
		bundle, err := source.GetBundle(name)
		if err != nil {
			return fmt.Errorf("bundle %q: %w", name, err)
		}
		cmd.Printf("bundle %q OK: %d identity entries, %d trust anchors\n",
			name, len(bundle.Identity), len(bundle.Trust))
	}

	binding, err := reload.NewResolver(source).Resolve(&cfg.TLS)
	if err != nil {
		return fmt.Errorf("resolving tls settings: %w", err)
	}
	cmd.Printf("tls mode: %s\n", binding.Mode)
	return nil
}
