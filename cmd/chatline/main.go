// Command chatline はリアルタイムチャットサーバーを起動する。
//
// 使い方:
//
//	chatline [serve|worker|migrate|healthcheck|help]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/chatline/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatline: %v\n", err)
		os.Exit(1)
	}
}
