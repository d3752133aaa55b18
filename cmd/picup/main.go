// Command picup uploads images to a GitHub repository or an Alist server
// and keeps a listing of everything it uploaded.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/okian/picup/internal/config"
)

const version = "0.3.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "picup:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "picup"
	app.Usage = "upload images to GitHub or Alist"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "YAML config `FILE`",
			EnvVar: config.EnvPrefix + "CONFIG",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override log level (debug, info, warn, error)",
		},
		cli.StringFlag{
			Name:  "locale",
			Usage: "override notice locale (en, zh-CN)",
		},
	}
	app.Commands = []cli.Command{
		uploadCommand(),
		serveCommand(),
		lsCommand(),
	}
	return app
}
