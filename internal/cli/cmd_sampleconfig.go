package cli

import "pushpatches/internal/config"

func (a *app) cmdSampleConfig(args []string) error {
	if len(args) > 0 {
		a.io.Println("Usage: pushpatches sample-config")

		return nil
	}

	a.io.Printf("%s", config.Sample)

	return nil
}
