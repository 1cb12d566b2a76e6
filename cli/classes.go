package cli

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/fcnseg/fcnseg/services/segmentation"
)

// ClassesAction prints the label and name of every class of the configured model.
func ClassesAction(c *cli.Context) error {
	cfg, err := loadConfig(c, newLogger(c))
	if err != nil {
		return err
	}
	for label, name := range cfg.TargetNames {
		suffix := ""
		if label == cfg.BgLabel {
			suffix = " (background)"
		}
		printf(c.App.Writer, "%d\t%s%s", label, name, suffix)
	}
	return nil
}

// BackendsAction prints the registered backends and the models they accept.
func BackendsAction(c *cli.Context) error {
	for _, name := range segmentation.RegisteredBackends() {
		reg, _ := segmentation.LookupBackend(name)
		printf(c.App.Writer, "%s\t%s", name, strings.Join(reg.Models, ", "))
	}
	return nil
}
