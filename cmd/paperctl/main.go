// Command paperctl runs operator tasks against a past-paper catalogue:
// extracting question blocks from local PDFs, previewing session buckets,
// importing a folder of papers and creating admin accounts.
package main

import (
	"io"
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "paperctl",
		Usage:  "operator tools for the past-paper explainer",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:  "extract",
				Usage: "print one question block from a local PDF",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pdf", Usage: "path to the paper", Required: true},
					&cli.StringFlag{Name: "label", Usage: "question label, e.g. 3(a)(ii)", Required: true},
					&cli.BoolFlag{Name: "prefix-match", Usage: "match the label as a bare line prefix"},
				},
				Action: ExtractAction,
			},
			{
				Name:  "sessions",
				Usage: "show how the papers in a folder group into exam sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "folder of PDFs", Value: "."},
				},
				Action: SessionsAction,
			},
			{
				Name:  "import",
				Usage: "upload every PDF in a folder to the configured store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "folder of PDFs, defaults to DATA_DIR"},
				},
				Action: ImportAction,
			},
			{
				Name:  "create-admin",
				Usage: "create an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "name", Value: "Administrator"},
				},
				Action: CreateAdminAction,
			},
		},
	}
}
