// Command pipnation はPip Nation AcademyのAPIサーバー・ワーカー・CLIクライアントを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/pipnation/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pipnation: %v\n", err)
		os.Exit(1)
	}
}
