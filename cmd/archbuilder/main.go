// Command archbuilder はAWS Architecture Builderのコマンドラインクライアントと認証プロキシ。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/archbuilder/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", app.ErrorMessage(err))
		os.Exit(1)
	}
}
